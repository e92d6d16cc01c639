package http

import (
	"errors"
	"net/http"
	"time"

	"recargas/internal/auth"
	"recargas/internal/core"
	applog "recargas/internal/log"
	"recargas/internal/services"
	"recargas/internal/validation"
)

type loginForm struct {
	Username string
	Next     string
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	next := safeNext(r.URL.Query().Get("next"), "/dashboard/")
	if _, ok := userFrom(r.Context()); ok {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		s.render(w, r, http.StatusOK, "login.html", pageData{Title: "Entrar", Data: loginForm{Next: next}})
		return
	case http.MethodPost:
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	username := sanitizeInput(r.PostForm.Get("username"))
	next = safeNext(r.PostForm.Get("next"), next)

	_, token, err := s.accounts.Login(r.Context(), username, r.PostForm.Get("password"))
	if err != nil {
		msg := "Usuário ou senha inválidos."
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			s.logger.ErrorContext(r.Context(), "Login failed", applog.FieldOperation, applog.OpLogin, applog.FieldError, err)
			msg = "Não foi possível entrar agora. Tente novamente."
		}
		s.metrics.failedLogins.Add(1)
		s.render(w, r, http.StatusOK, "login.html", pageData{
			Title:  "Entrar",
			Errors: []string{msg},
			Data:   loginForm{Username: username, Next: next},
		})
		return
	}

	s.metrics.logins.Add(1)
	s.setSession(w, token)
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.clearSession(w)
	http.Redirect(w, r, "/login/", http.StatusSeeOther)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.render(w, r, http.StatusOK, "register.html", pageData{Title: "Cadastro", Data: services.Registration{}})
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	reg := services.Registration{
		Username:  sanitizeInput(r.PostForm.Get("username")),
		Email:     sanitizeInput(r.PostForm.Get("email")),
		FirstName: sanitizeInput(r.PostForm.Get("nome")),
		Password:  r.PostForm.Get("password1"),
		Password2: r.PostForm.Get("password2"),
	}
	if _, err := s.accounts.Register(r.Context(), reg); err != nil {
		reg.Password, reg.Password2 = "", ""
		s.render(w, r, http.StatusOK, "register.html", pageData{
			Title:  "Cadastro",
			Errors: []string{err.Error()},
			Data:   reg,
		})
		return
	}
	s.redirectWithFlash(w, r, "/login/", "success", "Cadastro realizado com sucesso!")
}

// contactForm is the "fale conosco" form.
type contactForm struct {
	Name    string `validate:"required,notblank,max=100" label:"Nome"`
	Email   string `validate:"required,email,max=255" label:"Email"`
	Message string `validate:"required,notblank" label:"Mensagem"`
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.render(w, r, http.StatusOK, "contact.html", pageData{Title: "Contato", Data: contactForm{}})
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	form := contactForm{
		Name:    sanitizeInput(r.PostForm.Get("nome")),
		Email:   sanitizeInput(r.PostForm.Get("email")),
		Message: sanitizeInput(r.PostForm.Get("mensagem")),
	}
	if err := validation.Struct(form); err != nil {
		s.render(w, r, http.StatusOK, "contact.html", pageData{
			Title:  "Contato",
			Errors: validation.Messages(err),
			Data:   form,
		})
		return
	}

	msg := core.ContactMessage{
		Name:    form.Name,
		Email:   form.Email,
		Message: form.Message,
		SentAt:  time.Now().UTC(),
		Status:  core.ContactStatusSent,
	}
	if _, err := s.contacts.SaveContact(r.Context(), msg); err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to save contact message", applog.FieldError, err)
		s.render(w, r, http.StatusInternalServerError, "contact.html", pageData{
			Title:  "Contato",
			Errors: []string{"Não foi possível enviar a mensagem."},
			Data:   form,
		})
		return
	}
	s.redirectWithFlash(w, r, "/contact-us/", "success", "Mensagem enviada com sucesso!")
}

type adminView struct {
	Users    []core.UserSummary
	Contacts []core.ContactMessage
}

// handleAdminUsers is the staff overview: users with their recharge counts
// and the latest contact messages.
func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.accounts.ListUsers(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to list users", applog.FieldError, err)
		http.Error(w, "Erro ao carregar usuários.", http.StatusInternalServerError)
		return
	}
	contacts, err := s.contacts.ListContacts(r.Context(), 50)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to list contact messages", applog.FieldError, err)
	}
	s.render(w, r, http.StatusOK, "admin.html", pageData{
		Title: "Administração",
		Data:  adminView{Users: users, Contacts: contacts},
	})
}
