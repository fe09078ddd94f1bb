package api

import (
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"PatternScan/internal/domain/models"
	domrepo "PatternScan/internal/domain/repository"
	"PatternScan/internal/repository"
	xhttp "PatternScan/pkg/http"
	xlogger "PatternScan/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ReportReader reads back the artifacts written by the aggregate and
// forecast stages.
type ReportReader interface {
	ReadPerformance() ([]models.SymbolPerformance, error)
	ReadPatternStats() ([]models.PatternStatsRow, error)
	ReadRollup() ([]models.MarketRollup, []models.TradeableSymbol, error)
	Path(name string) string
}

// ReportHandler serves the CSV artifacts as read-only JSON.
type ReportHandler struct {
	logger     *xlogger.Logger
	reports    ReportReader
	forecasts  domrepo.ForecastLedger
	trades     domrepo.TradeLedger
	staleAfter time.Duration
	now        func() time.Time
}

func NewReportHandler(logger *xlogger.Logger, reports ReportReader, forecasts domrepo.ForecastLedger,
	trades domrepo.TradeLedger, staleAfter time.Duration) *ReportHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	if staleAfter <= 0 {
		staleAfter = 36 * time.Hour
	}
	return &ReportHandler{
		logger:     logger,
		reports:    reports,
		forecasts:  forecasts,
		trades:     trades,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

func (h *ReportHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	g := e.Group("/api")
	g.GET("/performance", h.Performance)
	g.GET("/forecasts", h.Forecasts)
	g.GET("/patterns", h.Patterns)
	g.GET("/trades/:group", h.Trades)
	g.GET("/rollup", h.Rollup)
}

func (h *ReportHandler) Performance(c echo.Context) error {
	req := &models.PerformanceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	art, err := h.artifact(h.reports.Path(repository.PerformanceFile))
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	rows, err := h.reports.ReadPerformance()
	if err != nil {
		h.logger.Error("read performance", xlogger.String("path", art.Path), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("performance report unreadable").WithError(err))
	}
	out := rows[:0]
	for _, r := range rows {
		if matches(req.Symbol, r.Symbol) && matches(req.Country, r.Country) {
			out = append(out, r)
		}
	}
	return respond(c, art, out, req.Limit)
}

func (h *ReportHandler) Forecasts(c echo.Context) error {
	req := &models.ForecastsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	art, err := h.artifact(h.forecasts.Path())
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	rows, err := h.forecasts.Load(c.Request().Context())
	if err != nil {
		h.logger.Error("read forecast ledger", xlogger.String("path", art.Path), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("forecast ledger unreadable").WithError(err))
	}
	out := rows[:0]
	for _, f := range rows {
		if !matches(req.Symbol, f.Symbol) || !matches(req.Exchange, f.Exchange) {
			continue
		}
		if req.Pending && !f.IsPending() {
			continue
		}
		out = append(out, f)
	}
	// newest scans first
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScanDate.After(out[j].ScanDate) })
	return respond(c, art, out, req.Limit)
}

func (h *ReportHandler) Patterns(c echo.Context) error {
	req := &models.PatternsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	art, err := h.artifact(h.reports.Path(repository.PatternStatsFile))
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	rows, err := h.reports.ReadPatternStats()
	if err != nil {
		h.logger.Error("read pattern stats", xlogger.String("path", art.Path), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("pattern stats unreadable").WithError(err))
	}
	out := rows[:0]
	for _, r := range rows {
		if matches(req.Symbol, r.Symbol) && matches(req.Category, r.Category) {
			out = append(out, r)
		}
	}
	return respond(c, art, out, req.Limit)
}

func (h *ReportHandler) Trades(c echo.Context) error {
	req := &models.TradesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	group := strings.ToUpper(req.Group)
	art, err := h.artifact(h.trades.Path(group))
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	rows, err := h.trades.Load(c.Request().Context(), group)
	if err != nil {
		h.logger.Error("read trade ledger", xlogger.String("group", group), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.FromError(err, "trade ledger unreadable",
			xhttp.ErrorRule{Target: models.ErrNotFound, Status: http.StatusNotFound}))
	}
	out := rows[:0]
	for _, t := range rows {
		if matches(req.Symbol, t.Symbol) {
			out = append(out, t)
		}
	}
	return respond(c, art, out, req.Limit)
}

func (h *ReportHandler) Rollup(c echo.Context) error {
	art, err := h.artifact(h.reports.Path(repository.RollupFile))
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	markets, tradeable, err := h.reports.ReadRollup()
	if err != nil {
		h.logger.Error("read rollup", xlogger.String("path", art.Path), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("market rollup unreadable").WithError(err))
	}
	return xhttp.SuccessResponse(c, &models.RollupResponse{
		Artifact:  art,
		ProbRule:  models.ProbRule,
		Markets:   markets,
		Tradeable: tradeable,
	})
}

// Health lists every artifact with its age. Missing artifacts are reported
// as null rather than failing the probe.
func (h *ReportHandler) Health(c echo.Context) error {
	paths := map[string]string{
		"forecasts":   h.forecasts.Path(),
		"performance": h.reports.Path(repository.PerformanceFile),
		"patterns":    h.reports.Path(repository.PatternStatsFile),
		"rollup":      h.reports.Path(repository.RollupFile),
		"tradeable":   h.reports.Path(repository.TradeableFile),
	}
	artifacts := make(map[string]*models.Artifact, len(paths))
	stale := false
	for name, p := range paths {
		art, err := h.artifact(p)
		if err != nil {
			artifacts[name] = nil
			continue
		}
		stale = stale || art.Stale
		artifacts[name] = &art
	}
	status := "ok"
	if stale {
		status = "stale"
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"status":    status,
		"artifacts": artifacts,
	})
}

func (h *ReportHandler) artifact(path string) (models.Artifact, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return models.Artifact{}, xhttp.FromError(err, "artifact has not been generated",
			xhttp.ErrorRule{Target: os.ErrNotExist, Status: http.StatusNotFound},
		).WithParam("path", path)
	}
	mt := fi.ModTime().UTC()
	return models.Artifact{
		Path:       path,
		ModifiedAt: mt,
		Stale:      h.now().Sub(mt) > h.staleAfter,
	}, nil
}

func respond[T any](c echo.Context, art models.Artifact, rows []T, limit int) error {
	total := len(rows)
	if limit > 0 && limit < total {
		rows = rows[:limit]
	}
	if art.Stale {
		c.Response().Header().Set("X-Artifact-Stale", "true")
	}
	c.Response().Header().Set(echo.HeaderLastModified, art.ModifiedAt.Format(http.TimeFormat))
	return xhttp.SuccessResponse(c, &models.ReportResponse{Artifact: art, Rows: rows, Total: total})
}

func matches(want, got string) bool {
	return want == "" || strings.EqualFold(want, got)
}
