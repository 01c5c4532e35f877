package menu

import "github.com/AceNexus/LineBot/internal/render"

// resource is one shared learning link.
type resource struct {
	Name string
	URL  string
}

var resources = []resource{
	{"Git", "https://pse.is/7j2gcd"},
	{"IntelliJ", "https://pse.is/7j2gem"},
	{"Java", "https://pse.is/7j2gk2"},
	{"Spring Boot (1)", "https://pse.is/7j2jtm"},
	{"Spring Boot (2)", "https://pse.is/7j2gu8"},
	{"Java Message Service", "https://pse.is/7j2gxm"},
	{"ActiveMQ", "https://pse.is/7j2jaf"},
	{"Spring Cloud Eureka", "https://pse.is/7j2gyt"},
	{"Spring Cloud Config", "https://pse.is/7j2gzd"},
	{"Spring Cloud Gateway", "https://pse.is/7j2gzs"},
	{"Docker", "https://pse.is/7j2gvc"},
	{"Nginx", "https://pse.is/7j2gw5"},
	{"Database", "https://pse.is/7j2gwq"},
	{"LINE Bot", "https://pse.is/7j2h2j"},
	{"VirtualBox", "https://pse.is/7j2j9a"},
}

// resourceCard is the shared technical-resource link card.
func resourceCard() render.Card {
	buttons := make([]render.Button, 0, len(resources))
	for _, r := range resources {
		buttons = append(buttons, render.Button{Kind: render.ButtonURI, Label: r.Name, Value: r.URL})
	}
	return render.Card{
		Title:    "✨ 技術資源分享 ✨",
		Subtitle: "點選下方按鈕開啟",
		Buttons:  buttons,
	}
}
