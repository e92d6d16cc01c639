package http

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"recargas/internal/core"
	"recargas/internal/locale"
	applog "recargas/internal/log"
)

const flashCookie = "flash"

type flash struct {
	Level   string `json:"l"` // success, danger, info
	Message string `json:"m"`
}

// pageData is what every page template receives.
type pageData struct {
	Title   string
	User    *core.User
	Flashes []flash
	Errors  []string
	Fmt     locale.Formatter
	Lang    string
	Path    string
	Data    any
}

var templateFuncs = template.FuncMap{
	// value for <input type="datetime-local">
	"dateInput": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(formDateLayout)
	},
	"truncate": func(s string, n int) string {
		runes := []rune(s)
		if len(runes) <= n {
			return s
		}
		return string(runes[:n]) + "..."
	},
	"isTrue":  func(b *bool) bool { return b != nil && *b },
	"isFalse": func(b *bool) bool { return b != nil && !*b },
}

// parseTemplates builds one template set per page: the layout, the partials
// and the page itself, keyed by page file name.
func parseTemplates(fsys fs.FS) (map[string]*template.Template, error) {
	base, err := template.New("layout.html").Funcs(templateFuncs).ParseFS(fsys, "templates/layout.html", "templates/partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	files, err := fs.Glob(fsys, "templates/pages/*.html")
	if err != nil {
		return nil, err
	}

	pages := make(map[string]*template.Template, len(files))
	for _, f := range files {
		t, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := t.ParseFS(fsys, f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", f, err)
		}
		pages[path.Base(f)] = t
	}
	return pages, nil
}

// render executes a page into a buffer first so template errors still
// produce a clean 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	t, ok := s.pages[page]
	if !ok {
		s.logger.ErrorContext(r.Context(), "Template not loaded",
			applog.FieldComponent, applog.ComponentTemplate,
			applog.FieldPath, r.URL.Path,
			"template", page,
			"error_type", applog.ErrorTypeConfiguration)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	f := s.formatter(r)
	data.Fmt = f
	data.Lang = f.Lang()
	data.Path = r.URL.Path
	if u, ok := userFrom(r.Context()); ok {
		data.User = &u
	}
	data.Flashes = append(s.takeFlashes(w, r), data.Flashes...)

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		s.logger.ErrorContext(r.Context(), "Template execution failed",
			applog.FieldComponent, applog.ComponentTemplate,
			applog.FieldOperation, applog.OpRender,
			"template", page,
			applog.FieldError, err)
		http.Error(w, "Erro ao renderizar a página.", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// formatter picks the language from the lang cookie, then Accept-Language.
func (s *Server) formatter(r *http.Request) locale.Formatter {
	choice := ""
	if c, err := r.Cookie(locale.CookieName); err == nil {
		choice = c.Value
	}
	return locale.New(locale.Match(choice, r.Header.Get("Accept-Language")))
}

func (s *Server) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	tag := locale.Match(r.PathValue("code"), "")
	http.SetCookie(w, &http.Cookie{
		Name:     locale.CookieName,
		Value:    tag.String(),
		Path:     "/",
		MaxAge:   365 * 24 * 3600,
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, safeNext(r.URL.Query().Get("next"), "/dashboard/"), http.StatusSeeOther)
}

// addFlash queues messages for the next rendered page.
func (s *Server) addFlash(w http.ResponseWriter, r *http.Request, add ...flash) {
	flashes := append(readFlashes(r), add...)
	raw, err := json.Marshal(flashes)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    base64.RawURLEncoding.EncodeToString(raw),
		Path:     "/",
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) takeFlashes(w http.ResponseWriter, r *http.Request) []flash {
	flashes := readFlashes(r)
	if len(flashes) > 0 {
		http.SetCookie(w, &http.Cookie{Name: flashCookie, Path: "/", MaxAge: -1})
	}
	return flashes
}

func readFlashes(r *http.Request) []flash {
	c, err := r.Cookie(flashCookie)
	if err != nil || c.Value == "" {
		return nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil
	}
	var flashes []flash
	if err := json.Unmarshal(raw, &flashes); err != nil {
		return nil
	}
	return flashes
}

// redirectWithFlash is the post/redirect/get step of every form.
func (s *Server) redirectWithFlash(w http.ResponseWriter, r *http.Request, to, level, message string) {
	s.addFlash(w, r, flash{Level: level, Message: message})
	http.Redirect(w, r, to, http.StatusSeeOther)
}

// safeNext only follows local absolute paths.
func safeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return fallback
	}
	return next
}
