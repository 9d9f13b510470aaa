package charthttp

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"chartcore/internal/analysis/snapshot"
	"chartcore/internal/chartsync"
	"chartcore/internal/feed"
	"chartcore/internal/indicator"
	"chartcore/internal/logger"
	"chartcore/internal/market"
	"chartcore/internal/store/gormstore"
	"chartcore/internal/surface/echarts"
)

// Router 暴露图表相关的查询与操作接口。
type Router struct {
	Loader       *feed.Loader
	Layouts      *gormstore.Store
	DefaultLimit int
}

// NewRouter 构造 chart HTTP router。
func NewRouter(loader *feed.Loader, layouts *gormstore.Store, defaultLimit int) *Router {
	if defaultLimit <= 0 {
		defaultLimit = 300
	}
	return &Router{Loader: loader, Layouts: layouts, DefaultLimit: defaultLimit}
}

// Register 将 /api 路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/chart/candles", r.handleCandles)
	group.POST("/chart/refresh", r.handleRefresh)
	group.POST("/chart/indicators", r.handleIndicators)
	group.GET("/chart/export", r.handleExport)
	group.GET("/analytics/:symbol", r.handleAnalytics)
	if r.Layouts != nil {
		group.GET("/chart/layouts", r.handleListLayouts)
		group.POST("/chart/layouts", r.handleSaveLayout)
		group.GET("/chart/layouts/:id", r.handleGetLayout)
		group.DELETE("/chart/layouts/:id", r.handleDeleteLayout)
		group.POST("/journal/notes", r.handleAddNote)
		group.GET("/journal/notes", r.handleListNotes)
	}
}

// collect 拉取一批周期的 K 线并等待网络部分完成，合并为逐周期片段。
func (r *Router) collect(ctx context.Context, symbol string, resolutions []market.Resolution, limit int, refresh bool) ([]resolutionSlice, error) {
	var (
		cached  map[market.Resolution]market.Candles
		pending <-chan feed.BatchResult
		err     error
	)
	if refresh {
		pending, err = r.Loader.Refresh(ctx, symbol, resolutions, limit)
	} else {
		cached, pending, err = r.Loader.Load(ctx, symbol, resolutions, limit)
	}
	if err != nil {
		return nil, err
	}

	var fetched feed.BatchResult
	if pending != nil {
		select {
		case fetched = <-pending:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	out := make([]resolutionSlice, 0, len(resolutions))
	for _, res := range resolutions {
		slice := resolutionSlice{
			Resolution: string(res),
			State:      string(r.Loader.Status(symbol, res)),
		}
		candles, ok := fetched.Data[res]
		if !ok {
			candles, ok = cached[res]
		}
		if ok {
			slice.Candles = toCandleDTOs(res, candles)
		}
		if ferr, found := fetched.Errs[res]; found && ferr != nil {
			slice.Error = ferr.Error()
		}
		out = append(out, slice)
	}
	return out, nil
}

func (r *Router) handleCandles(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol 不能为空"})
		return
	}
	resolutions, err := parseResolutionList(c.DefaultQuery("resolutions", "1h"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit := r.parseLimit(c.Query("limit"))

	slices, err := r.collect(c.Request.Context(), symbol, resolutions, limit, false)
	if err != nil {
		if errors.Is(err, feed.ErrContractViolation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Errorf("[api] candles failed ip=%s symbol=%s err=%v", c.ClientIP(), symbol, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Debugf("[api] candles ip=%s symbol=%s resolutions=%d limit=%d", c.ClientIP(), symbol, len(resolutions), limit)
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "data": slices})
}

func (r *Router) handleRefresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol 不能为空"})
		return
	}
	resolutions, err := parseResolutions(req.Resolutions)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = r.DefaultLimit
	}

	slices, err := r.collect(c.Request.Context(), symbol, resolutions, limit, true)
	if err != nil {
		if errors.Is(err, feed.ErrContractViolation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Errorf("[api] refresh failed ip=%s symbol=%s err=%v", c.ClientIP(), symbol, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] refresh ip=%s symbol=%s resolutions=%d", c.ClientIP(), symbol, len(resolutions))
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "data": slices})
}

func (r *Router) handleIndicators(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req indicatorsRequest
	if err := decodeValidated(body, compiledIndicatorsSchema, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	res, err := market.ParseResolution(req.Resolution)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	configs, err := decodeIndicatorEntries(req.Indicators)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = r.DefaultLimit
	}

	candles, err := r.loadOne(c.Request.Context(), symbol, res, limit)
	if err != nil {
		writeFeedError(c, symbol, res, err)
		return
	}

	series := make(map[string]map[string][]pointDTO, len(configs))
	overlays := make(map[string]bool, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		result, err := indicator.Compute(candles, cfg)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		keyed := make(map[string][]pointDTO, len(result))
		for key, s := range result {
			keyed[key] = toPointDTOs(res, s)
		}
		series[cfg.ID] = keyed
		overlays[cfg.ID] = cfg.Overlay
	}
	logger.Debugf("[api] indicators ip=%s symbol=%s res=%s count=%d", c.ClientIP(), symbol, res, len(series))
	c.JSON(http.StatusOK, gin.H{
		"symbol":     symbol,
		"resolution": string(res),
		"series":     series,
		"overlay":    overlays,
	})
}

func (r *Router) handleExport(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol 不能为空"})
		return
	}
	res, err := market.ParseResolution(c.DefaultQuery("resolution", "1h"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	format := strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", "html")))
	if format != "html" && format != "png" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be html or png"})
		return
	}

	candles, err := r.loadOne(c.Request.Context(), symbol, res, r.parseLimit(c.Query("limit")))
	if err != nil {
		writeFeedError(c, symbol, res, err)
		return
	}

	surface := echarts.NewSurface(symbol, res)
	surface.SetCandles(candles)
	if layoutID := strings.TrimSpace(c.Query("layout_id")); layoutID != "" && r.Layouts != nil {
		if err := r.applyLayoutOverlays(c.Request.Context(), surface, layoutID, candles); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	switch format {
	case "png":
		png, err := surface.RenderPNG(c.Request.Context())
		if err != nil {
			logger.Errorf("[api] export png failed ip=%s symbol=%s err=%v", c.ClientIP(), symbol, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "image/png", png)
	default:
		html, err := surface.RenderHTML()
		if err != nil {
			logger.Errorf("[api] export html failed ip=%s symbol=%s err=%v", c.ClientIP(), symbol, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", html)
	}
	logger.Infof("[api] export ip=%s symbol=%s res=%s format=%s", c.ClientIP(), symbol, res, format)
}

// applyLayoutOverlays 把布局里启用的叠加指标画到导出表面上。
func (r *Router) applyLayoutOverlays(ctx context.Context, surface *echarts.Surface, layoutID string, candles market.Candles) error {
	layout, err := r.Layouts.GetLayout(ctx, layoutID)
	if err != nil {
		return err
	}
	entries := make([]indicatorEntry, 0, len(layout.Indicators))
	for _, ind := range layout.Indicators {
		enabled := ind.Enabled
		entries = append(entries, indicatorEntry{
			ID:      ind.ID,
			Type:    ind.Type,
			Params:  ind.Params,
			Enabled: &enabled,
			Overlay: ind.Overlay,
		})
	}
	configs, err := decodeIndicatorEntries(entries)
	if err != nil {
		return err
	}
	for _, cfg := range configs {
		if !cfg.Enabled || !cfg.Overlay {
			continue
		}
		result, err := indicator.Compute(candles, cfg)
		if err != nil {
			return err
		}
		for key, s := range result {
			name := cfg.ID
			if key != indicator.KeyValue {
				name = cfg.ID + ":" + key
			}
			surface.SetSeriesData(name, toSurfacePoints(s))
		}
	}
	return nil
}

func (r *Router) handleAnalytics(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	res, err := market.ParseResolution(c.DefaultQuery("resolution", "1h"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	candles, err := r.loadOne(c.Request.Context(), symbol, res, r.parseLimit(c.Query("limit")))
	if err != nil {
		writeFeedError(c, symbol, res, err)
		return
	}
	report, err := snapshot.Build(symbol, res, candles, snapshot.Settings{})
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (r *Router) handleListLayouts(c *gin.Context) {
	layouts, err := r.Layouts.ListLayouts(c.Request.Context(), c.Query("symbol"))
	if err != nil {
		logger.Errorf("[api] list layouts failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"layouts": layouts})
}

func (r *Router) handleSaveLayout(c *gin.Context) {
	var req layoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := market.ParseResolution(req.Primary); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, raw := range req.Secondaries {
		if _, err := market.ParseResolution(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	// 保存前校验指标配置可解码，避免落库的布局导出时才报错
	if _, err := decodeIndicatorEntries(req.Indicators); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	layout := gormstore.Layout{
		ID:          strings.TrimSpace(c.Query("id")),
		Name:        req.Name,
		Symbol:      req.Symbol,
		Primary:     req.Primary,
		Secondaries: req.Secondaries,
		Indicators:  toStoredIndicators(req.Indicators),
	}
	saved, err := r.Layouts.SaveLayout(c.Request.Context(), layout)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] layout saved ip=%s id=%s name=%s", c.ClientIP(), saved.ID, saved.Name)
	c.JSON(http.StatusOK, gin.H{"layout": saved})
}

func (r *Router) handleGetLayout(c *gin.Context) {
	layout, err := r.Layouts.GetLayout(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gormstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "layout not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"layout": layout})
}

func (r *Router) handleDeleteLayout(c *gin.Context) {
	err := r.Layouts.DeleteLayout(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gormstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "layout not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (r *Router) handleAddNote(c *gin.Context) {
	var req journalNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := market.ParseResolution(req.Resolution); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	note, err := r.Layouts.AddJournalNote(c.Request.Context(), gormstore.JournalNote{
		Symbol:     req.Symbol,
		Resolution: req.Resolution,
		CandleTime: req.CandleTime,
		Note:       req.Note,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"note": note})
}

func (r *Router) handleListNotes(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	notes, err := r.Layouts.ListJournalNotes(c.Request.Context(), c.Query("symbol"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notes": notes})
}

// loadOne 拉取单周期 K 线并等待结果。
func (r *Router) loadOne(ctx context.Context, symbol string, res market.Resolution, limit int) (market.Candles, error) {
	cached, pending, err := r.Loader.Load(ctx, symbol, []market.Resolution{res}, limit)
	if err != nil {
		return nil, err
	}
	if candles, ok := cached[res]; ok {
		return candles, nil
	}
	select {
	case result := <-pending:
		if candles, ok := result.Data[res]; ok {
			return candles, nil
		}
		if ferr, ok := result.Errs[res]; ok && ferr != nil {
			return nil, ferr
		}
		return nil, &feed.NoDataError{Symbol: symbol, Resolution: res}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func writeFeedError(c *gin.Context, symbol string, res market.Resolution, err error) {
	switch {
	case errors.Is(err, feed.ErrContractViolation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case feed.IsNoData(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case feed.IsFetchError(err):
		logger.Warnf("[api] upstream fetch failed ip=%s symbol=%s res=%s err=%v", c.ClientIP(), symbol, res, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		logger.Errorf("[api] load failed ip=%s symbol=%s res=%s err=%v", c.ClientIP(), symbol, res, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (r *Router) parseLimit(raw string) int {
	limit, _ := strconv.Atoi(strings.TrimSpace(raw))
	if limit <= 0 {
		return r.DefaultLimit
	}
	return limit
}

func parseResolutionList(raw string) ([]market.Resolution, error) {
	return parseResolutions(strings.Split(raw, ","))
}

func parseResolutions(items []string) ([]market.Resolution, error) {
	seen := make(map[market.Resolution]bool, len(items))
	out := make([]market.Resolution, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		res, err := market.ParseResolution(item)
		if err != nil {
			return nil, err
		}
		if seen[res] {
			continue
		}
		seen[res] = true
		out = append(out, res)
	}
	if len(out) == 0 {
		return nil, errors.New("resolutions 不能为空")
	}
	return out, nil
}

// decodeIndicatorEntries 把松散的请求条目解码为类型化配置；enabled 缺省为 true。
func decodeIndicatorEntries(entries []indicatorEntry) ([]indicator.Config, error) {
	out := make([]indicator.Config, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		id := strings.TrimSpace(e.ID)
		if id == "" {
			return nil, errors.New("indicator id 不能为空")
		}
		if seen[id] {
			return nil, errors.New("indicator id 重复: " + id)
		}
		seen[id] = true
		params, err := indicator.DecodeParams(indicator.Type(e.Type), e.Params)
		if err != nil {
			return nil, err
		}
		if err := params.Validate(); err != nil {
			return nil, err
		}
		enabled := true
		if e.Enabled != nil {
			enabled = *e.Enabled
		}
		out = append(out, indicator.Config{
			ID:      id,
			Type:    indicator.Type(e.Type),
			Params:  params,
			Enabled: enabled,
			Overlay: e.Overlay,
		})
	}
	return out, nil
}

func toSurfacePoints(series indicator.Series) []chartsync.SeriesPoint {
	out := make([]chartsync.SeriesPoint, len(series))
	for i, p := range series {
		out[i] = chartsync.SeriesPoint{Time: p.Time, Value: p.Value}
	}
	return out
}

func toStoredIndicators(entries []indicatorEntry) []gormstore.LayoutIndicator {
	out := make([]gormstore.LayoutIndicator, len(entries))
	for i, e := range entries {
		enabled := true
		if e.Enabled != nil {
			enabled = *e.Enabled
		}
		out[i] = gormstore.LayoutIndicator{
			ID:      e.ID,
			Type:    e.Type,
			Params:  e.Params,
			Enabled: enabled,
			Overlay: e.Overlay,
		}
	}
	return out
}
