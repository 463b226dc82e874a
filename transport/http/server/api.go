package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Tsukikage7/jobhub/coordinator"
	"github.com/Tsukikage7/jobhub/job"
	"github.com/Tsukikage7/jobhub/logger"
	"github.com/Tsukikage7/jobhub/transport/response"
)

// MaxRequestBodySize 任务描述符请求体大小上限.
const MaxRequestBodySize = 1 << 20

// JobsPattern 任务路由模式.
const JobsPattern = "/api/v1/scheduler/jobs/{id}"

// JobScheduler 协调器 API 依赖的任务操作.
type JobScheduler interface {
	ScheduleJob(ctx context.Context, id string, desc *job.Descriptor) (coordinator.Result, error)
	DeleteJob(ctx context.Context, id string) error
}

// API 协调器 HTTP API.
type API struct {
	scheduler JobScheduler
	log       logger.Logger
}

// NewAPI 创建协调器 HTTP API.
func NewAPI(scheduler JobScheduler, log logger.Logger) *API {
	if log == nil {
		log = logger.NewNop()
	}
	return &API{scheduler: scheduler, log: log}
}

// RegisterRoutes 注册任务路由.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST "+JobsPattern, a.scheduleJob)
	mux.HandleFunc("PUT "+JobsPattern, a.scheduleJob)
	mux.HandleFunc("DELETE "+JobsPattern, a.deleteJob)
}

func (a *API) scheduleJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	desc, err := decodeDescriptor(w, r)
	if err != nil {
		a.writeError(w, r, id, err)
		return
	}

	result, err := a.scheduler.ScheduleJob(r.Context(), id, desc)
	if err != nil {
		a.writeError(w, r, id, err)
		return
	}
	_ = response.WriteSuccess(w, result)
}

func (a *API) deleteJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.scheduler.DeleteJob(r.Context(), id); err != nil {
		a.writeError(w, r, id, err)
		return
	}
	_ = response.WriteSuccess[any](w, nil)
}

// decodeDescriptor 解析请求体，空请求体返回 nil 描述符.
func decodeDescriptor(w http.ResponseWriter, r *http.Request) (*job.Descriptor, error) {
	body := http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	var desc job.Descriptor
	err := json.NewDecoder(body).Decode(&desc)

	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
		return &desc, nil
	case errors.Is(err, io.EOF):
		return nil, nil
	case errors.As(err, &tooLarge):
		return nil, response.WrapWithMessage(response.CodeInvalidParam, "request body too large", err)
	default:
		return nil, response.WrapWithMessage(response.CodeInvalidParam, "malformed job descriptor", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, id string, err error) {
	code := response.ExtractCode(err)
	log := a.log.WithContext(r.Context()).With(
		logger.String("jobId", id),
		logger.String("method", r.Method),
		logger.Int("code", code.Num),
		logger.Err(err),
	)
	if code.HTTPStatus >= http.StatusInternalServerError {
		log.Error("[API] 请求处理失败")
	} else {
		log.Debug("[API] 请求被拒绝")
	}
	_ = response.WriteError(w, err)
}
