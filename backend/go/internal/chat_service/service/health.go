package service

import (
	"context"
	"time"
)

// 健康状态取值。
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusDisabled  = "disabled"
)

// Probe 是一个依赖的健康检查。Required 的依赖失败时整体为 unhealthy，否则为 degraded。
type Probe struct {
	Name     string
	Required bool
	Ping     func(ctx context.Context) error // nil 表示未启用
}

// ServiceStatus 是单个依赖的状态。
type ServiceStatus struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HealthReport 是 /health 的响应。
type HealthReport struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Services  map[string]ServiceStatus `json:"services"`
}

// HealthService 依次检查各个依赖。
type HealthService struct {
	probes      []Probe
	llmProvider string
	llmReady    bool
	timeout     time.Duration
}

func NewHealthService(llmProvider string, llmReady bool, probes ...Probe) *HealthService {
	return &HealthService{probes: probes, llmProvider: llmProvider, llmReady: llmReady, timeout: 3 * time.Second}
}

func (h *HealthService) Check(ctx context.Context) HealthReport {
	rep := HealthReport{Status: StatusHealthy, Timestamp: time.Now().UTC(), Services: map[string]ServiceStatus{}}

	for _, p := range h.probes {
		if p.Ping == nil {
			rep.Services[p.Name] = ServiceStatus{Status: StatusDisabled}
			continue
		}
		pctx, cancel := context.WithTimeout(ctx, h.timeout)
		start := time.Now()
		err := p.Ping(pctx)
		cancel()

		st := ServiceStatus{Status: StatusHealthy, LatencyMS: time.Since(start).Milliseconds()}
		if err != nil {
			st.Status, st.Error = StatusUnhealthy, err.Error()
			if p.Required {
				rep.Status = StatusUnhealthy
			} else if rep.Status == StatusHealthy {
				rep.Status = StatusDegraded
			}
		}
		rep.Services[p.Name] = st
	}

	// 没有模型时仍能给出抽取式回答
	llm := ServiceStatus{Status: StatusHealthy, Provider: h.llmProvider}
	if !h.llmReady {
		llm.Status = StatusDisabled
		if rep.Status == StatusHealthy {
			rep.Status = StatusDegraded
		}
	}
	rep.Services["llm"] = llm
	return rep
}
