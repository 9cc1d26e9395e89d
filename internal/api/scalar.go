package api

import (
	"encoding/json"
	"html/template"
	"net/http"
)

// scalarConfig is the subset of Scalar's configuration object we set.
type scalarConfig struct {
	Theme              string         `json:"theme"`
	Layout             string         `json:"layout"`
	DarkMode           bool           `json:"darkMode"`
	DefaultOpenAllTags bool           `json:"defaultOpenAllTags"`
	ShowSidebar        bool           `json:"showSidebar"`
	HiddenClients      []string       `json:"hiddenClients,omitempty"`
	MetaData           scalarMetaData `json:"metaData"`
}

type scalarMetaData struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

var scalarPage = template.Must(template.New("scalar").Parse(`<!DOCTYPE html>
<html>
<head>
	<title>{{.Title}} - API Reference</title>
	<meta charset="utf-8" />
	<meta name="viewport" content="width=device-width, initial-scale=1" />
	<style>body { margin: 0; }</style>
</head>
<body>
	<script id="api-reference" data-url="{{.SpecURL}}" data-configuration="{{.Config}}"></script>
	<script src="https://cdn.jsdelivr.net/npm/@scalar/api-reference"></script>
</body>
</html>`))

// ScalarHandler serves the Scalar reference UI for the relay admin API.
func ScalarHandler(specURL, title, description string) http.Handler {
	cfg, err := json.Marshal(scalarConfig{
		Theme:              "deepSpace",
		Layout:             "modern",
		DarkMode:           true,
		DefaultOpenAllTags: true,
		ShowSidebar:        true,
		HiddenClients:      []string{"unirest", "asynchttp", "nsurlsession"},
		MetaData:           scalarMetaData{Title: title, Description: description},
	})
	if err != nil {
		panic(err)
	}
	data := struct {
		Title   string
		SpecURL string
		Config  string
	}{Title: title, SpecURL: specURL, Config: string(cfg)}

	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_ = scalarPage.Execute(w, data)
	})
}
