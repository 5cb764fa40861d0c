package core

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxImageURLLen = 2048
	maxMonthLen    = 32
	maxLabelLen    = 255
)

// AgendaInput is the submitted form for add and edit.
type AgendaInput struct {
	ImageURL string `form:"image_url"`
	Month    string `form:"month"`
	Label    string `form:"change_name"`
}

// Normalize trims surrounding whitespace from every field.
func (in AgendaInput) Normalize() AgendaInput {
	return AgendaInput{
		ImageURL: strings.TrimSpace(in.ImageURL),
		Month:    strings.TrimSpace(in.Month),
		Label:    strings.TrimSpace(in.Label),
	}
}

// Validate returns a *ValidationError for the first bad field.
func (in AgendaInput) Validate() error {
	switch {
	case in.ImageURL == "":
		return invalid("image_url", "is required")
	case len(in.ImageURL) > maxImageURLLen:
		return invalid("image_url", "is too long")
	case !isImageURL(in.ImageURL):
		return invalid("image_url", "must be an http(s) URL or a path starting with /")
	case in.Month == "":
		return invalid("month", "is required")
	case utf8.RuneCountInString(in.Month) > maxMonthLen:
		return invalid("month", "is too long")
	case in.Label == "":
		return invalid("change_name", "is required")
	case utf8.RuneCountInString(in.Label) > maxLabelLen:
		return invalid("change_name", "is too long")
	}
	return nil
}

func isImageURL(s string) bool {
	if isLocalPath(s) {
		return true
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ParseAgendaID parses a route id; only positive integers are accepted.
func ParseAgendaID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid("id", "must be a positive integer")
	}
	return id, nil
}

// AgendaService validates input and maps repository failures onto the error taxonomy:
// *ValidationError, ErrAgendaNotFound, *StorageError.
type AgendaService struct {
	repo    AgendaRepository
	timeout time.Duration
}

func NewAgendaService(repo AgendaRepository, timeout time.Duration) *AgendaService {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &AgendaService{repo: repo, timeout: timeout}
}

func (s *AgendaService) List(ctx context.Context) ([]AgendaItem, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, storageErr("list agenda", err)
	}
	return items, nil
}

func (s *AgendaService) Add(ctx context.Context, in AgendaInput) (AgendaItem, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return AgendaItem{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	item, err := s.repo.Create(ctx, in.ImageURL, in.Month, in.Label)
	if err != nil {
		return AgendaItem{}, storageErr("add agenda item", err)
	}
	return *item, nil
}

func (s *AgendaService) Update(ctx context.Context, id int64, in AgendaInput) (AgendaItem, error) {
	if id <= 0 {
		return AgendaItem{}, invalid("id", "must be a positive integer")
	}
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return AgendaItem{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	item, err := s.repo.Update(ctx, id, in.ImageURL, in.Month, in.Label)
	if err != nil {
		if errors.Is(err, ErrAgendaNotFound) {
			return AgendaItem{}, ErrAgendaNotFound
		}
		return AgendaItem{}, storageErr("update agenda item", err)
	}
	return *item, nil
}

func (s *AgendaService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return invalid("id", "must be a positive integer")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrAgendaNotFound) {
			return ErrAgendaNotFound
		}
		return storageErr("delete agenda item", err)
	}
	return nil
}
