package core

import (
	"strconv"

	"github.com/gin-gonic/gin"
	g "maragu.dev/gomponents"
	h "maragu.dev/gomponents/html"
)

// page carries what every layout needs.
type page struct {
	Title    string
	Identity *Identity
	CSRF     string
	Flashes  []string
}

func renderHTML(c *gin.Context, status int, node g.Node) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(status)
	_ = node.Render(c.Writer)
}

func layout(p page, body ...g.Node) g.Node {
	return h.Doctype(h.HTML(
		h.Lang("fr"),
		h.Head(
			h.Meta(h.Charset("utf-8")),
			h.Meta(h.Name("viewport"), h.Content("width=device-width, initial-scale=1")),
			h.TitleEl(g.Text(p.Title+" | Olive Agenda")),
			h.Link(h.Rel("stylesheet"), h.Href("/static/css/app.css")),
		),
		h.Body(
			navBar(p.Identity),
			h.Main(
				h.Class("container"),
				flashList(p.Flashes),
				g.Group(body),
			),
		),
	))
}

func navBar(id *Identity) g.Node {
	links := []g.Node{h.A(h.Href(PathHome), g.Text("Accueil"))}
	if id == nil {
		links = append(links,
			h.A(h.Href(PathLogin), g.Text("Login")),
			h.A(h.Href(PathSignup), g.Text("Signup")),
		)
	} else {
		links = append(links,
			h.A(h.Href("/stades"), g.Text("Stades")),
			h.A(h.Href("/recolte"), g.Text("Récolte")),
			h.A(h.Href("/about"), g.Text("About")),
			h.A(h.Href(PathProfile), g.Text("Profile")),
		)
		if id.Role.IsAdmin() {
			links = append(links, h.A(h.Href(PathManageAgenda), g.Text("Manage agenda")))
		}
		links = append(links, h.A(h.Href("/logout"), g.Text("Logout")))
	}
	return h.Nav(h.Class("navbar"), g.Group(links))
}

func flashList(msgs []string) g.Node {
	if len(msgs) == 0 {
		return nil
	}
	items := make([]g.Node, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, h.Li(g.Text(m)))
	}
	return h.Ul(h.Class("flash"), g.Group(items))
}

func csrfField(token string) g.Node {
	if token == "" {
		return nil
	}
	return h.Input(h.Type("hidden"), h.Name(csrfFormField), h.Value(token))
}

func homePage(p page) g.Node {
	greeting := h.P(g.Text("Suivez les stades phénologiques de l'olivier tout au long de l'année."))
	if p.Identity != nil {
		greeting = h.P(g.Textf("Bienvenue, %s.", p.Identity.Username))
	}
	return layout(p, h.H1(g.Text("Olive Agenda")), greeting)
}

func credentialsForm(p page, action, submit string) g.Node {
	return h.Form(
		h.Method("post"),
		h.Action(action),
		h.Class("credentials-form"),
		csrfField(p.CSRF),
		h.Label(g.Text("Username"), h.Input(h.Type("text"), h.Name("username"), h.Required())),
		h.Label(g.Text("Password"), h.Input(h.Type("password"), h.Name("password"), h.Required())),
		h.Button(h.Type("submit"), g.Text(submit)),
	)
}

func loginPage(p page) g.Node {
	return layout(p,
		h.H1(g.Text("Login")),
		credentialsForm(p, PathLogin, "Login"),
		h.P(g.Text("Need an account? "), h.A(h.Href(PathSignup), g.Text("Signup"))),
	)
}

func signupPage(p page) g.Node {
	return layout(p,
		h.H1(g.Text("Signup")),
		credentialsForm(p, PathSignup, "Signup"),
		h.P(g.Text("Already have an account? "), h.A(h.Href(PathLogin), g.Text("Login"))),
	)
}

func profilePage(p page) g.Node {
	id := p.Identity
	return layout(p,
		h.H1(g.Text("Profile")),
		h.P(h.Strong(g.Text("Username: ")), g.Text(id.Username)),
		h.P(h.Strong(g.Text("Role: ")), g.Text(id.Role.String())),
	)
}

func aboutPage(p page) g.Node {
	return layout(p,
		h.H1(g.Text("About")),
		h.P(g.Text("Olive Agenda regroupe les changements observés sur les oliviers, mois par mois.")),
	)
}

func recoltePage(p page) g.Node {
	return layout(p,
		h.H1(g.Text("Récolte")),
		h.P(g.Text("La récolte a lieu d'octobre à janvier selon la variété et la maturité recherchée.")),
	)
}

func agendaCard(item AgendaItem) g.Node {
	return h.Div(
		h.Class("agenda-card"),
		h.Img(h.Src(item.ImageURL), h.Alt(item.Label)),
		h.H3(g.Text(item.Month)),
		h.P(g.Text(item.Label)),
	)
}

func stadesPage(p page, items []AgendaItem) g.Node {
	cards := make([]g.Node, 0, len(items))
	for _, it := range items {
		cards = append(cards, agendaCard(it))
	}
	return layout(p,
		h.H1(g.Text("Stades")),
		g.If(len(items) == 0, h.P(g.Text("Aucun élément pour le moment."))),
		h.Div(h.Class("agenda-grid"), g.Group(cards)),
	)
}

func agendaFields(item AgendaItem) g.Node {
	return g.Group([]g.Node{
		h.Input(h.Type("text"), h.Name("image_url"), h.Value(item.ImageURL), h.Placeholder("Image URL"), h.Required()),
		h.Input(h.Type("text"), h.Name("month"), h.Value(item.Month), h.Placeholder("Month"), h.Required()),
		h.Input(h.Type("text"), h.Name("change_name"), h.Value(item.Label), h.Placeholder("Change"), h.Required()),
	})
}

func manageAgendaPage(p page, items []AgendaItem) g.Node {
	rows := make([]g.Node, 0, len(items))
	for _, it := range items {
		id := strconv.FormatInt(it.ID, 10)
		rows = append(rows, h.Tr(
			h.Td(g.Text(id)),
			h.Td(h.Form(
				h.Method("post"),
				h.Action(PathManageAgenda+"/edit/"+id),
				csrfField(p.CSRF),
				agendaFields(it),
				h.Button(h.Type("submit"), g.Text("Save")),
			)),
			h.Td(h.Form(
				h.Method("post"),
				h.Action(PathManageAgenda+"/delete/"+id),
				csrfField(p.CSRF),
				h.Button(h.Type("submit"), g.Text("Delete")),
			)),
		))
	}
	return layout(p,
		h.H1(g.Text("Manage agenda")),
		h.Form(
			h.Method("post"),
			h.Action(PathManageAgenda+"/add"),
			h.Class("agenda-add"),
			csrfField(p.CSRF),
			agendaFields(AgendaItem{}),
			h.Button(h.Type("submit"), g.Text("Add")),
		),
		h.Table(
			h.THead(h.Tr(h.Th(g.Text("Id")), h.Th(g.Text("Item")), h.Th())),
			h.TBody(g.Group(rows)),
		),
	)
}

func errorPage(status int, message string) g.Node {
	return layout(page{Title: strconv.Itoa(status)},
		h.H1(g.Text(strconv.Itoa(status))),
		h.P(g.Text(message)),
		h.A(h.Href(PathHome), g.Text("Back to home")),
	)
}
