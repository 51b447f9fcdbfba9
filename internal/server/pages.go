package server

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"go.uber.org/zap"
)

//go:embed web/templates/*.html web/static/*
var webFS embed.FS

func parsePages() *template.Template {
	return template.Must(template.ParseFS(webFS, "web/templates/*.html"))
}

func staticHandler() http.Handler {
	sub, err := fs.Sub(webFS, "web/static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

type pageData struct {
	Title             string
	Active            string
	Door2LimitSeconds int
}

// page renders one of the embedded templates. Scripts and styles live under
// /static so the templates stay plain markup.
func (s *Server) page(name, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		data := pageData{
			Title:             title,
			Active:            name,
			Door2LimitSeconds: int(s.door2Limit.Seconds()),
		}
		if err := s.pages.ExecuteTemplate(&buf, name, data); err != nil {
			s.log.Error("render page", zap.String("page", name), zap.Error(err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	}
}
