package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	"github.com/installhub/api/internal/platform/httpx"
	"github.com/installhub/api/internal/platform/textutil"
	"github.com/installhub/api/internal/services"
)

const maxQuoteRequestBody = 32 * 1024

// QuoteHandlers exposes fee previews and quote generation.
type QuoteHandlers struct {
	quotes services.QuoteService
}

// NewQuoteHandlers constructs the quote handler set.
func NewQuoteHandlers(quotes services.QuoteService) *QuoteHandlers {
	return &QuoteHandlers{quotes: quotes}
}

// Routes registers the quote endpoints.
func (h *QuoteHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/quotes:preview", h.previewFees)
	r.Post("/projects/{projectId}/quotes", h.generateQuote)
	r.Get("/quotes/{quoteId}", h.getQuote)
}

type generateQuoteRequest struct {
	Lines []struct {
		QuoteItemID string `json:"quoteItemId"`
		Quantity    int    `json:"quantity"`
	} `json:"lines"`
	Location  *string                      `json:"location"`
	Rooms     *int                         `json:"rooms"`
	Overrides *services.FeeConfigOverrides `json:"overrides"`
}

type quoteLinePayload struct {
	QuoteItemID string  `json:"quoteItemId"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	UnitPrice   float64 `json:"unitPrice"`
	Quantity    int     `json:"quantity"`
	Amount      float64 `json:"amount"`
}

type quotePayload struct {
	ID              string                `json:"id"`
	ProjectID       string                `json:"projectId"`
	Location        string                `json:"location"`
	Rooms           *int                  `json:"rooms"`
	Lines           []quoteLinePayload    `json:"lines"`
	DevicesSubtotal float64               `json:"devicesSubtotal"`
	TotalDevices    int                   `json:"totalDevices"`
	Fees            services.FeeBreakdown `json:"fees"`
	CreatedAt       string                `json:"createdAt"`
}

// previewFees prices explicit totals. Numeric fields are read leniently: numeric strings are
// accepted and anything else counts as zero, which the fee engine sanitises.
func (h *QuoteHandlers) previewFees(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.quotes == nil {
		writeServiceUnavailable(ctx, w, "quote")
		return
	}
	body, err := readLimitedBody(r, maxQuoteRequestBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be a JSON object", http.StatusBadRequest))
		return
	}
	doc := gjson.ParseBytes(body)

	cmd := services.PreviewFeesCommand{
		DevicesSubtotal: doc.Get("devicesSubtotal").Float(),
		TotalDevices:    doc.Get("totalDevices").Float(),
		Rooms:           optionalFloat(doc.Get("rooms")),
		Overrides:       parseOverrides(doc.Get("overrides")),
	}
	if location := doc.Get("location"); location.Type == gjson.String {
		cmd.Location = lo.ToPtr(textutil.PlainText(location.String()))
	}

	fees, err := h.quotes.PreviewFees(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, fees)
}

func (h *QuoteHandlers) generateQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.quotes == nil {
		writeServiceUnavailable(ctx, w, "quote")
		return
	}
	projectID := strings.TrimSpace(chi.URLParam(r, "projectId"))
	if projectID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "project id is required", http.StatusBadRequest))
		return
	}
	body, err := readLimitedBody(r, maxQuoteRequestBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req generateQuoteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	cmd := services.GenerateQuoteCommand{
		ProjectID: projectID,
		Location:  textutil.PlainTextPtr(req.Location),
		Rooms:     req.Rooms,
		Overrides: req.Overrides,
	}
	for _, line := range req.Lines {
		cmd.Lines = append(cmd.Lines, services.QuoteLineInput{QuoteItemID: line.QuoteItemID, Quantity: line.Quantity})
	}
	quote, err := h.quotes.GenerateQuote(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/quotes/"+quote.ID)
	writeJSONResponse(w, http.StatusCreated, buildQuotePayload(quote))
}

func (h *QuoteHandlers) getQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.quotes == nil {
		writeServiceUnavailable(ctx, w, "quote")
		return
	}
	quote, err := h.quotes.GetQuote(ctx, chi.URLParam(r, "quoteId"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildQuotePayload(quote))
}

func buildQuotePayload(quote services.Quote) quotePayload {
	return quotePayload{
		ID:        quote.ID,
		ProjectID: quote.ProjectID,
		Location:  quote.Location,
		Rooms:     quote.Rooms,
		Lines: lo.Map(quote.Lines, func(line services.QuoteLine, _ int) quoteLinePayload {
			return quoteLinePayload(line)
		}),
		DevicesSubtotal: quote.DevicesSubtotal,
		TotalDevices:    quote.TotalDevices,
		Fees:            quote.Fees,
		CreatedAt:       quote.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func optionalFloat(value gjson.Result) *float64 {
	if value.Type != gjson.Number {
		return nil
	}
	return lo.ToPtr(value.Num)
}

// parseOverrides keeps only numeric override fields; the engine drops negative values.
func parseOverrides(value gjson.Result) *services.FeeConfigOverrides {
	if !value.IsObject() {
		return nil
	}
	number := func(key string) *float64 {
		if field := value.Get(key); field.Type == gjson.Number {
			return lo.ToPtr(field.Float())
		}
		return nil
	}
	return &services.FeeConfigOverrides{
		InstallationPerDevice: number("installationPerDevice"),
		IntegrationRate:       number("integrationRate"),
		LogisticsPrimary:      number("logisticsPrimary"),
		LogisticsNearRegion:   number("logisticsNearRegion"),
		LogisticsOther:        number("logisticsOther"),
		MiscRate:              number("miscRate"),
		TaxRate:               number("taxRate"),
	}
}
