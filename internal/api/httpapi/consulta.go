package httpapi

import (
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/permitdesk/folio/internal/domain/folio"
	"github.com/permitdesk/folio/internal/logger"
	"github.com/permitdesk/folio/internal/storage"
)

// consultaPage is the public status page reached by scanning the QR code
// printed on the document.
var consultaPage = template.Must(template.New("consulta").Parse(`<!DOCTYPE html>
<html lang="es"><head><meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Consulta de Folio {{.Folio}}</title><style>
body{font-family:-apple-system,'Segoe UI',sans-serif;background:#f4f4f8;margin:0;padding:20px}
.card{max-width:450px;margin:0 auto;background:#fff;border-radius:16px;box-shadow:0 8px 24px rgba(0,0,0,.08);padding:32px;text-align:center}
.estado{font-size:2em;font-weight:700;color:{{.Color}};margin:16px 0}
.folio{font-size:1.4em;font-weight:bold;background:#f8f9fa;padding:8px;border-radius:8px;letter-spacing:1px}
.detalle{color:#555;margin:20px 0;line-height:1.6}
.pie{font-size:.85em;color:#888;margin-top:24px}
</style></head><body><div class="card">
<h2>Consulta de Folio</h2>
<div class="folio">Folio: {{.Folio}}</div>
<div class="estado">{{.Estado}}</div>
<div class="detalle">{{.Mensaje}}</div>
<div class="pie">Consulta: {{.Consulta}}</div>
</div></body></html>
`))

// consultaNotFound is rendered for unknown or purged folios.
var consultaNotFound = template.Must(template.New("consulta404").Parse(`<!DOCTYPE html>
<html lang="es"><head><meta charset="UTF-8"><title>Folio No Encontrado</title><style>
body{font-family:Arial,sans-serif;background:#f4f4f8;margin:0;padding:20px}
.card{max-width:400px;margin:0 auto;background:#fff;border-radius:16px;padding:32px;text-align:center;box-shadow:0 8px 24px rgba(0,0,0,.08)}
.titulo{font-size:1.4em;font-weight:bold;margin-bottom:12px}
.mensaje{color:#666;line-height:1.6}
</style></head><body><div class="card">
<div class="titulo">Folio No Encontrado</div>
<div class="mensaje">El folio <strong>{{.Folio}}</strong> no est&aacute; registrado. Verifique que el c&oacute;digo sea correcto.</div>
</div></body></html>
`))

// consultaView feeds the status page template.
type consultaView struct {
	Folio    string
	Estado   string
	Color    string
	Mensaje  string
	Consulta string
}

// handleConsulta renders the human-facing status page for a folio.
func (s *Server) handleConsulta(w http.ResponseWriter, r *http.Request) {
	f := domain.Folio(chi.URLParam(r, "folio"))

	record, remaining, err := s.service.Status(r.Context(), f)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.ErrorKV(r.Context(), "Consulta lookup failed", "folio", f, "error", err)
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_ = consultaNotFound.Execute(w, map[string]string{"Folio": string(f)})

		return
	}

	view := consultaView{
		Folio:    string(record.Folio),
		Consulta: time.Now().Format("02/01/2006 15:04"),
	}

	switch record.Status {
	case domain.StatusConfirmed, domain.StatusOverridden:
		view.Estado = "VIGENTE"
		view.Color = "#28a745"
		view.Mensaje = "Su folio está confirmado y vigente."
	case domain.StatusPending:
		view.Estado = "PENDIENTE DE PAGO"
		view.Color = "#e0a800"
		view.Mensaje = "Tiempo restante para confirmar el pago: " + remaining.Round(time.Minute).String() + "."
	case domain.StatusStopped:
		view.Estado = "DETENIDO"
		view.Color = "#6c757d"
		view.Mensaje = "El trámite fue detenido a solicitud del interesado."
	default:
		view.Estado = string(record.Status)
		view.Color = "#dc3545"
		view.Mensaje = "Consulte el estado de su trámite con la autoridad emisora."
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = consultaPage.Execute(w, view)
}
