package http

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"recargas/internal/core"
	"recargas/internal/csvimport"
	"recargas/internal/export"
	"recargas/internal/kpi"
	applog "recargas/internal/log"
	"recargas/internal/services"
)

// rechargeForm is the data behind recharge.html, used for both create and edit.
type rechargeForm struct {
	Recharge core.Recharge
	Action   string
	Editing  bool
}

func currentUser(r *http.Request) core.User {
	u, _ := userFrom(r.Context())
	return u
}

// rechargeErrorMessage turns parse and validation errors into the text
// shown under the form.
func rechargeErrorMessage(err error) string {
	var fe *FieldError
	switch {
	case errors.As(err, &fe):
		return fmt.Sprintf("Valor inválido em '%s'.", fe.Field)
	case errors.Is(err, core.ErrZeroDate):
		return "Informe a data da recarga."
	case errors.Is(err, core.ErrNegativeKWh):
		return "kWh não pode ser negativo."
	case errors.Is(err, core.ErrLocationLong):
		return fmt.Sprintf("Local deve ter no máximo %d caracteres.", core.MaxLocationLength)
	case errors.Is(err, core.ErrInvalidNumber):
		return "Valor numérico inválido."
	}
	return "Erro ao salvar a recarga."
}

func (s *Server) handleNewRecharge(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if r.Method != http.MethodPost {
		s.render(w, r, http.StatusOK, "recharge.html", pageData{
			Title: "Nova recarga",
			Data:  rechargeForm{Recharge: core.Recharge{Date: time.Now().Truncate(time.Minute)}, Action: "/recharge/"},
		})
		return
	}

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Formato de requisição inválido.").Write(w)
		return
	}
	rec, err := RechargeFromValues(p, core.Recharge{UserID: user.ID}, false)
	if err == nil {
		_, err = s.recharges.CreateRecharge(r.Context(), rec)
	}
	if err != nil {
		s.render(w, r, http.StatusUnprocessableEntity, "recharge.html", pageData{
			Title:  "Nova recarga",
			Errors: []string{rechargeErrorMessage(err)},
			Data:   rechargeForm{Recharge: rec, Action: "/recharge/"},
		})
		return
	}

	s.metrics.rechargesCreated.Add(1)
	s.redirectWithFlash(w, r, "/dashboard/", "success", "Recarga registrada com sucesso!")
}

type bulkView struct {
	Errors []string
	Header []string
}

// handleBulkRecharge imports a CSV file. Any validation error rejects the
// whole file.
func (s *Server) handleBulkRecharge(w http.ResponseWriter, r *http.Request) {
	view := bulkView{Header: append(append([]string{}, csvimport.RequiredHeaders...), "observacoes", "local")}

	if r.Method != http.MethodPost {
		s.render(w, r, http.StatusOK, "bulk.html", pageData{Title: "Importar CSV", Data: view})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		msg := "Nenhum arquivo enviado."
		if errors.As(err, &tooBig) {
			msg = fmt.Sprintf("Arquivo maior que o limite de %d bytes.", s.opts.MaxUploadBytes)
		}
		s.render(w, r, http.StatusBadRequest, "bulk.html", pageData{Title: "Importar CSV", Errors: []string{msg}, Data: view})
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		s.render(w, r, http.StatusBadRequest, "bulk.html", pageData{Title: "Importar CSV", Errors: []string{"Nenhum arquivo enviado."}, Data: view})
		return
	}
	defer file.Close()

	res := csvimport.ParseReader(file)
	if !res.OK() {
		s.logger.InfoContext(r.Context(), "CSV import rejected",
			applog.FieldOperation, applog.OpImport,
			applog.FieldRows, len(res.Records),
			"errors", len(res.Errors))
		view.Errors = res.Errors
		s.render(w, r, http.StatusUnprocessableEntity, "bulk.html", pageData{Title: "Importar CSV", Data: view})
		return
	}

	out := s.recharges.Import(r.Context(), currentUser(r).ID, res.Records)
	s.metrics.rechargesImported.Add(int64(out.Created))
	flashes := []flash{{Level: "success", Message: fmt.Sprintf("Importação concluída: %d recargas adicionadas.", out.Created)}}
	for _, warn := range out.Warnings {
		flashes = append(flashes, flash{Level: "warning", Message: warn})
	}
	s.addFlash(w, r, flashes...)
	http.Redirect(w, r, "/history/", http.StatusSeeOther)
}

type historyView struct {
	Page    core.Page[core.Recharge]
	Query   core.HistoryQuery
	Exempt  *bool
	Filters template.URL // encoded filters for pagination links
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	q := historyQuery(r.URL.Query())
	filter := q.Filter(time.Now())

	if r.URL.Query().Get("export") == "csv" {
		s.exportHistory(w, r, user.ID, filter, q.Active())
		return
	}

	page, err := s.recharges.ListRecharges(r.Context(), user.ID, filter, r.URL.Query().Get("page"), HistoryPageSize)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to list recharges", applog.FieldOperation, applog.OpList, applog.FieldError, err)
		http.Error(w, "Erro ao carregar o histórico.", http.StatusInternalServerError)
		return
	}

	filters := r.URL.Query()
	filters.Del("page")
	filters.Del("export")
	s.render(w, r, http.StatusOK, "history.html", pageData{
		Title: "Histórico",
		Data: historyView{
			Page:    page,
			Query:   q,
			Exempt:  q.ExemptChoice(),
			Filters: template.URL(filters.Encode()),
		},
	})
}

func (s *Server) exportHistory(w http.ResponseWriter, r *http.Request, userID int64, f core.RechargeFilter, filtered bool) {
	recs, err := s.recharges.AllRecharges(r.Context(), userID, f)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to export recharges", applog.FieldOperation, applog.OpExport, applog.FieldError, err)
		http.Error(w, "Erro ao exportar.", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", export.ContentType("csv"))
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(filtered)+`"`)
	if err := export.WriteCSV(w, recs); err != nil {
		s.logger.ErrorContext(r.Context(), "CSV export interrupted", applog.FieldError, err)
	}
}

func (s *Server) handleEditRecharge(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	id, ok := pathID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	rec, err := s.recharges.GetRecharge(r.Context(), user.ID, id)
	if errors.Is(err, core.ErrNotFound) {
		s.redirectWithFlash(w, r, "/history/", "danger", "Recarga não encontrada.")
		return
	}
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to load recharge", applog.FieldRechargeID, id, applog.FieldError, err)
		http.Error(w, "Erro ao carregar a recarga.", http.StatusInternalServerError)
		return
	}

	action := "/edit-recharge/" + strconv.FormatInt(id, 10) + "/"
	if r.Method != http.MethodPost {
		s.render(w, r, http.StatusOK, "recharge.html", pageData{
			Title: "Editar recarga",
			Data:  rechargeForm{Recharge: rec, Action: action, Editing: true},
		})
		return
	}

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Formato de requisição inválido.").Write(w)
		return
	}
	updated, err := RechargeFromValues(p, rec, false)
	if err == nil {
		err = s.recharges.UpdateRecharge(r.Context(), updated)
	}
	if err != nil {
		s.render(w, r, http.StatusUnprocessableEntity, "recharge.html", pageData{
			Title:  "Editar recarga",
			Errors: []string{rechargeErrorMessage(err)},
			Data:   rechargeForm{Recharge: updated, Action: action, Editing: true},
		})
		return
	}
	s.redirectWithFlash(w, r, "/history/", "success", "Recarga atualizada com sucesso!")
}

// handleDeleteRecharge answers HTMX requests with an empty body and a
// recharge:deleted trigger so the row can be removed in place.
func (s *Server) handleDeleteRecharge(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	id, ok := pathID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	err := s.recharges.DeleteRecharge(r.Context(), user.ID, id)
	switch {
	case errors.Is(err, core.ErrNotFound):
		if isHTMX(r) {
			NotFoundError("Recarga não encontrada.").Write(w)
			return
		}
		s.redirectWithFlash(w, r, "/history/", "danger", "Recarga não encontrada.")
		return
	case err != nil:
		s.logger.ErrorContext(r.Context(), "Failed to delete recharge", applog.FieldRechargeID, id, applog.FieldError, err)
		if isHTMX(r) {
			InternalServerError("Erro ao remover a recarga.").Write(w)
			return
		}
		http.Error(w, "Erro ao remover a recarga.", http.StatusInternalServerError)
		return
	}

	if isHTMX(r) {
		NewHTMXResponse().
			TriggerRechargeDeleted(id).
			TriggerSuccessNotification("Recarga removida.").
			Write(w)
		return
	}
	s.redirectWithFlash(w, r, "/history/", "success", "Recarga removida.")
}

func (s *Server) handleDeleteAllRecharges(w http.ResponseWriter, r *http.Request) {
	n, err := s.recharges.DeleteAllRecharges(r.Context(), currentUser(r).ID)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to delete all recharges", applog.FieldError, err)
		s.redirectWithFlash(w, r, "/settings/", "danger", "Erro ao excluir as recargas.")
		return
	}
	s.redirectWithFlash(w, r, "/settings/", "success", fmt.Sprintf("Todas as %d recargas foram excluídas.", n))
}

type dashboardView struct {
	KPIs      kpi.KPIs
	HasConfig bool
	Months    []kpi.Month
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	rep, err := s.recharges.Report(r.Context(), currentUser(r).ID)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to compute report", applog.FieldComponent, applog.ComponentReport, applog.FieldError, err)
		http.Error(w, "Erro ao calcular os indicadores.", http.StatusInternalServerError)
		return
	}
	s.render(w, r, http.StatusOK, "dashboard.html", pageData{
		Title: "Painel",
		Data:  dashboardView{KPIs: rep.KPIs, HasConfig: rep.HasConfig, Months: rep.Months},
	})
}

// handleMonthlyReport feeds the dashboard charts.
func (s *Server) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.recharges.Report(r.Context(), currentUser(r).ID)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to compute report", applog.FieldComponent, applog.ComponentReport, applog.FieldError, err)
		jsonError(w, http.StatusInternalServerError, "Report unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := export.WriteJSON(w, rep); err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to write report", applog.FieldError, err)
	}
}

type settingsView struct {
	FuelPrice   string
	FuelEconomy string
	Recharges   int
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	if r.Method == http.MethodPost {
		if resp := ParseFormOrFail(r); resp != nil {
			resp.Write(w)
			return
		}
		view := settingsView{
			FuelPrice:   sanitizeInput(r.PostForm.Get("preco_gasolina")),
			FuelEconomy: sanitizeInput(r.PostForm.Get("consumo_km_l")),
		}
		price, perr := core.ParseDecimal(view.FuelPrice)
		economy, eerr := core.ParseDecimal(view.FuelEconomy)
		var err error
		switch {
		case perr != nil:
			err = &FieldError{Field: "preco_gasolina", Err: perr}
		case eerr != nil:
			err = &FieldError{Field: "consumo_km_l", Err: eerr}
		default:
			err = s.recharges.SaveSettings(r.Context(), core.ComparisonConfig{UserID: user.ID, FuelPrice: price, FuelEconomy: economy})
		}
		if err != nil {
			msg := rechargeErrorMessage(err)
			if errors.Is(err, services.ErrInvalidSettings) {
				msg = "Preço e consumo não podem ser negativos."
			}
			s.render(w, r, http.StatusUnprocessableEntity, "settings.html", pageData{
				Title:  "Configurações",
				Errors: []string{msg},
				Data:   view,
			})
			return
		}
		s.redirectWithFlash(w, r, "/dashboard/", "success", "Configurações salvas!")
		return
	}

	view := settingsView{}
	cfg, err := s.recharges.Settings(r.Context(), user.ID)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to load settings", applog.FieldError, err)
	}
	if cfg != nil {
		view.FuelPrice = strconv.FormatFloat(cfg.FuelPrice, 'f', -1, 64)
		view.FuelEconomy = strconv.FormatFloat(cfg.FuelEconomy, 'f', -1, 64)
	}
	if rep, err := s.recharges.Report(r.Context(), user.ID); err == nil {
		view.Recharges = rep.KPIs.Recharges
	}
	s.render(w, r, http.StatusOK, "settings.html", pageData{Title: "Configurações", Data: view})
}
