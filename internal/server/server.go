package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"quantbt/internal/backtest"
	"quantbt/internal/market"
	"quantbt/internal/optimize"
	"quantbt/internal/store"
	"quantbt/internal/strategy"
	"quantbt/internal/types"
)

// Server 提供回测与寻优的 HTTP API。
type Server struct {
	addr    string
	base    backtest.Config
	jobs    *JobManager
	results *store.Store
	router  *gin.Engine
}

// Config 描述 HTTP Server 的依赖。
type Config struct {
	Addr     string
	Base     backtest.Config
	Provider market.Provider
	Results  *store.Store
}

// NewServer 构建 HTTP Server。
func NewServer(cfg Config) (*Server, error) {
	if cfg.Provider == nil {
		return nil, errors.New("provider 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:    cfg.Addr,
		base:    cfg.Base,
		jobs:    NewJobManager(cfg.Provider, cfg.Results),
		results: cfg.Results,
		router:  router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.GET("/api/strategies", s.handleStrategies)

	bt := s.router.Group("/api/backtest")
	bt.POST("/runs", s.handleRunStart)
	bt.GET("/runs", s.handleRunList)
	bt.GET("/runs/:id", s.handleRunDetail)
	bt.DELETE("/runs/:id", s.handleRunCancel)

	opt := s.router.Group("/api/optimize")
	opt.POST("/jobs", s.handleOptimizeStart)
	opt.GET("/jobs", s.handleOptimizeList)
	opt.GET("/jobs/:id", s.handleOptimizeDetail)
	opt.DELETE("/jobs/:id", s.handleOptimizeCancel)
}

func (s *Server) handleStrategies(c *gin.Context) {
	names := strategy.Names()
	out := make([]gin.H, 0, len(names))
	for _, name := range names {
		specs, err := strategy.SchemaFor(name)
		if err != nil {
			continue
		}
		// name 来自 Names()，DefaultsFor 不会失败
		defaults, _ := strategy.DefaultsFor(name)
		out = append(out, gin.H{
			"name":       name,
			"parameters": specs,
			"defaults":   defaults,
		})
	}
	c.JSON(http.StatusOK, gin.H{"strategies": out})
}

func (s *Server) handleRunStart(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg, err := s.buildRunConfig(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	job, err := s.jobs.SubmitBacktest(cfg)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

func (s *Server) handleRunList(c *gin.Context) {
	if s.results != nil {
		runs, err := s.results.ListRuns(c.Request.Context(), 100)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"runs": runs, "jobs": s.jobs.List()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": s.jobs.List()})
}

func (s *Server) handleRunDetail(c *gin.Context) {
	id := c.Param("id")
	if job, ok := s.jobs.Get(id); ok {
		c.JSON(http.StatusOK, gin.H{"job": job})
		return
	}
	if s.results != nil {
		if run, err := s.results.GetRun(c.Request.Context(), id); err == nil {
			c.JSON(http.StatusOK, gin.H{"run": run})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
}

func (s *Server) handleRunCancel(c *gin.Context) {
	if !s.jobs.Cancel(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"canceled": true})
}

func (s *Server) handleOptimizeStart(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	base, err := s.buildRunConfig(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	optCfg, err := parseOptimizeConfig(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	job, err := s.jobs.SubmitOptimize(base, optCfg)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

func (s *Server) handleOptimizeList(c *gin.Context) {
	if s.results != nil {
		jobs, err := s.results.ListOptimizations(c.Request.Context(), 100)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"optimizations": jobs, "jobs": s.jobs.List()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": s.jobs.List()})
}

func (s *Server) handleOptimizeDetail(c *gin.Context) {
	id := c.Param("id")
	if job, ok := s.jobs.Get(id); ok {
		c.JSON(http.StatusOK, gin.H{"job": job})
		return
	}
	if s.results != nil {
		model, rows, err := s.results.GetOptimization(c.Request.Context(), id)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"optimization": model, "results": rows})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
}

func (s *Server) handleOptimizeCancel(c *gin.Context) {
	if !s.jobs.Cancel(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"canceled": true})
}

// buildRunConfig 从请求体推导回测配置：
// 以 server 启动时的基础配置为底，逐字段被请求覆盖。
// 数值字段用 gjson 宽松取值，"20" 与 20 同样接受。
func (s *Server) buildRunConfig(raw []byte) (backtest.Config, error) {
	if len(raw) > 0 && !gjson.ValidBytes(raw) {
		return backtest.Config{}, types.NewValidationError("请求体不是合法 JSON")
	}
	cfg := s.base.Clone()
	body := gjson.ParseBytes(raw)
	if v := body.Get("symbols"); v.Exists() {
		cfg.Symbols = cfg.Symbols[:0]
		v.ForEach(func(_, sym gjson.Result) bool {
			cfg.Symbols = append(cfg.Symbols, sym.String())
			return true
		})
	}
	if v := body.Get("strategy"); v.Exists() {
		cfg.Strategy = v.String()
	}
	if v := body.Get("start"); v.Exists() {
		t, err := parseDate(v.String())
		if err != nil {
			return backtest.Config{}, types.NewValidationError("start 日期格式非法")
		}
		cfg.Start = t
	}
	if v := body.Get("end"); v.Exists() {
		t, err := parseDate(v.String())
		if err != nil {
			return backtest.Config{}, types.NewValidationError("end 日期格式非法")
		}
		cfg.End = t
	}
	if v := body.Get("initial_capital"); v.Exists() {
		cfg.InitialCapital = v.Float()
	}
	if v := body.Get("risk_free_rate"); v.Exists() {
		cfg.RiskFreeRate = v.Float()
	}
	if v := body.Get("min_observations"); v.Exists() {
		cfg.MinObservations = int(v.Int())
	}
	if v := body.Get("params"); v.Exists() {
		if !v.IsObject() {
			return backtest.Config{}, types.NewValidationError("params 必须是对象")
		}
		if cfg.Params == nil {
			cfg.Params = strategy.Params{}
		}
		v.ForEach(func(key, val gjson.Result) bool {
			cfg.Params[key.String()] = val.Float()
			return true
		})
	}
	if err := cfg.Validate(); err != nil {
		return backtest.Config{}, err
	}
	return cfg, nil
}

// parseOptimizeConfig 从请求体解析寻优段。
func parseOptimizeConfig(raw []byte) (optimize.Config, error) {
	body := gjson.ParseBytes(raw)
	spacesNode := body.Get("spaces")
	if !spacesNode.Exists() || !spacesNode.IsArray() {
		return optimize.Config{}, types.NewValidationError("spaces 必须是非空数组")
	}
	var cfg optimize.Config
	spacesNode.ForEach(func(_, node gjson.Result) bool {
		sp := optimize.ParameterSpace{
			Name: node.Get("name").String(),
			Min:  node.Get("min").Float(),
			Max:  node.Get("max").Float(),
			Step: node.Get("step").Float(),
		}
		node.Get("values").ForEach(func(_, val gjson.Result) bool {
			sp.Values = append(sp.Values, val.Float())
			return true
		})
		cfg.Spaces = append(cfg.Spaces, sp)
		return true
	})
	cfg.Objective = body.Get("objective").String()
	cfg.Minimize = body.Get("minimize").Bool()
	cfg.Workers = int(body.Get("workers").Int())
	if v := body.Get("early_stop_score"); v.Exists() {
		score := v.Float()
		cfg.EarlyStopScore = &score
	}
	return cfg, nil
}

func parseDate(raw string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", raw, time.UTC)
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Router 暴露底层路由，测试用。
func (s *Server) Router() http.Handler { return s.router }
