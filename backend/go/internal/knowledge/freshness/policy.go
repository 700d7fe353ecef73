// Package freshness 决定本地知识是否需要在回答前或回答后到官网核实。
package freshness

import (
	"time"

	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
)

// Mode 是核实方式。
type Mode string

const (
	ModeNone  Mode = "none"       // 直接使用本地结果
	ModeAsync Mode = "background" // 先用本地结果回答，后台核实并对账
	ModeSync  Mode = "sync"       // 阻塞等待核实结果，并以核实结果回答
)

// Reason 说明做出决定的依据。
type Reason string

const (
	ReasonNoLocalMatch   Reason = "no_local_match"
	ReasonHardExpired    Reason = "hard_expired"
	ReasonStaleSensitive Reason = "stale_sensitive"
	ReasonStale          Reason = "stale"
	ReasonFreshSensitive Reason = "fresh_sensitive"
	ReasonFresh          Reason = "fresh"
)

// Decision 是策略的输出。
type Decision struct {
	Mode    Mode    `json:"mode"`
	Reason  Reason  `json:"reason"`
	AgeDays float64 `json:"ageDays"`
	Class   Class   `json:"class"`
}

// Required 报告是否需要核实。
func (d Decision) Required() bool {
	return d.Mode != ModeNone
}

// Policy 是软过期和硬过期阈值（天）。
type Policy struct {
	SoftDays float64
	HardDays float64
}

// DefaultPolicy 是 7 天软过期、30 天硬过期。
func DefaultPolicy() Policy {
	return Policy{SoftDays: 7, HardDays: 30}
}

// Decide 根据检索结果中最旧事实的年龄和查询类别做出决定。
//
//	无本地结果                   -> sync
//	age > hard                   -> sync
//	soft < age <= hard, 敏感     -> sync
//	soft < age <= hard, 不敏感   -> background
//	age <= soft, 敏感            -> background
//	age <= soft, 不敏感          -> none
func (p Policy) Decide(facts []*models.Fact, class Class, now time.Time) Decision {
	if len(facts) == 0 {
		return Decision{Mode: ModeSync, Reason: ReasonNoLocalMatch, Class: class}
	}
	age := OldestAge(facts, now)
	d := Decision{AgeDays: age, Class: class}
	switch {
	case age > p.HardDays:
		d.Mode, d.Reason = ModeSync, ReasonHardExpired
	case age > p.SoftDays && class.Any():
		d.Mode, d.Reason = ModeSync, ReasonStaleSensitive
	case age > p.SoftDays:
		d.Mode, d.Reason = ModeAsync, ReasonStale
	case class.Any():
		d.Mode, d.Reason = ModeAsync, ReasonFreshSensitive
	default:
		d.Mode, d.Reason = ModeNone, ReasonFresh
	}
	return d
}

// OldestAge 返回一组事实中最大的年龄（天）。
func OldestAge(facts []*models.Fact, now time.Time) float64 {
	var oldest float64
	for i, f := range facts {
		if age := f.AgeDays(now); i == 0 || age > oldest {
			oldest = age
		}
	}
	return oldest
}
