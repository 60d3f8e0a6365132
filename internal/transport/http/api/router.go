package apihttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"qihuo/internal/store"
	"qihuo/internal/types"

	"github.com/gin-gonic/gin"
)

const maxListLimit = 500

// RecordReader 是记录查询所需的最小存储能力。
type RecordReader interface {
	Get(ctx context.Context, runID string) (types.DecisionRecord, error)
	List(ctx context.Context, filter store.ListFilter) ([]types.DecisionRecord, error)
}

// Runner 同步执行一次运行。
type Runner interface {
	Run(ctx context.Context, req types.AnalysisRequest) types.DecisionRecord
}

type Router struct {
	Records          RecordReader
	Runner           Runner
	defaultProducers []string
}

func NewRouter(records RecordReader, runner Runner, defaultProducers []string) *Router {
	return &Router{Records: records, Runner: runner, defaultProducers: defaultProducers}
}

// Register 将 /api 路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/records", r.handleListRecords)
	group.GET("/records/:id", r.handleRecordByID)
	if r.Runner != nil {
		group.POST("/runs", r.handleRun)
	}
}

func (r *Router) handleListRecords(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 {
		limit = 50
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	filter := store.ListFilter{
		Instrument: strings.TrimSpace(c.Query("instrument")),
		Outcome:    types.Outcome(strings.ToLower(strings.TrimSpace(c.Query("outcome")))),
		Limit:      limit,
	}
	if filter.Outcome != "" && filter.Outcome != types.OutcomeExecuted && filter.Outcome != types.OutcomeAborted {
		c.JSON(http.StatusBadRequest, gin.H{"error": "outcome must be executed or aborted"})
		return
	}
	recs, err := r.Records.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs, "count": len(recs)})
}

func (r *Router) handleRecordByID(c *gin.Context) {
	rec, err := r.Records.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

type runRequest struct {
	Instrument     string   `json:"instrument" binding:"required"`
	AsOf           string   `json:"as_of"`
	Producers      []string `json:"producers"`
	ReferencePrice float64  `json:"reference_price"`
}

func (r *Router) handleRun(c *gin.Context) {
	var body runRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	asOf, err := types.ParseAsOf(body.AsOf, time.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	producers := body.Producers
	if len(producers) == 0 {
		producers = r.defaultProducers
	}
	req := types.NewAnalysisRequest(body.Instrument, asOf, producers)
	req.ReferencePrice = body.ReferencePrice

	rec := r.Runner.Run(c.Request.Context(), req)
	if rec.Abort != nil && rec.Abort.Reason == types.AbortInvalidRequest {
		c.JSON(http.StatusUnprocessableEntity, rec)
		return
	}
	c.JSON(http.StatusOK, rec)
}
