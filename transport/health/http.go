package health

import (
	"encoding/json"
	"net/http"
)

const (
	// DefaultLivenessPath 默认存活检查路径.
	DefaultLivenessPath = "/healthz"
	// DefaultReadinessPath 默认就绪检查路径.
	DefaultReadinessPath = "/readyz"
)

// HTTPHandler HTTP 健康检查处理器.
type HTTPHandler struct {
	health *Health
}

// NewHTTPHandler 创建 HTTP 健康检查处理器.
func NewHTTPHandler(h *Health) *HTTPHandler {
	return &HTTPHandler{health: h}
}

// LivenessHandler 返回存活检查 HTTP Handler.
func (h *HTTPHandler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.writeResponse(w, h.health.Liveness(r.Context()))
	}
}

// ReadinessHandler 返回就绪检查 HTTP Handler.
func (h *HTTPHandler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.writeResponse(w, h.health.Readiness(r.Context()))
	}
}

// writeResponse 非 UP 状态返回 503.
func (h *HTTPHandler) writeResponse(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	statusCode := http.StatusOK
	if resp.Status != StatusUp {
		statusCode = http.StatusServiceUnavailable
	}
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// RegisterRoutes 注册 GET 健康检查路由.
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET "+DefaultLivenessPath, h.LivenessHandler())
	mux.HandleFunc("GET "+DefaultReadinessPath, h.ReadinessHandler())
}
