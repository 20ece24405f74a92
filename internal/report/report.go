// Package report is the HTTP cycle-report transport described in spec.md
// §4.5/§6: a buffered, retrying POST sender adapted from the teacher's
// services/webhook/internal/engine.Engine.SendWebhook retry loop, modified
// so report delivery runs on its own goroutine fed by a channel and can
// never stall the scheduler's phase timer (spec.md §7).
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/junctionctl/controller/internal/obslog"
)

// LaneCycleData is one lane's per-phase contribution to a cycle report.
type LaneCycleData struct {
	LaneIndex    int            `json:"laneIndex"`
	Density      float64        `json:"density"`
	Count        int            `json:"count"`
	VehicleTypes map[string]int `json:"vehicleTypes,omitempty"`
}

// PhaseCycleData is one phase's lane measurements for a cycle report.
type PhaseCycleData struct {
	PhaseIndex int             `json:"phaseIndex"`
	Lanes      []LaneCycleData `json:"lanes"`
}

// CycleReport is the JSON payload spec.md §4.5 defines for the HTTP report
// sent at each cycle wrap.
type CycleReport struct {
	CycleReportID           string           `json:"cycleReportId"`
	SubLocationID           int              `json:"subLocationId"`
	Name                    string           `json:"name"`
	Description             string           `json:"description"`
	NextCyclePhaseDurations []int64          `json:"nextCyclePhaseDurations"`
	CycleData               []PhaseCycleData `json:"cycleData"`
	TSecretKey              string           `json:"tSecretKey"`
}

const (
	defaultMaxRetries    = 3
	defaultRetryDelay    = 2 * time.Second
	defaultSendTimeout   = 10 * time.Second
	defaultQueueCapacity = 32
)

// Reporter enqueues cycle reports for asynchronous, retried delivery.
type Reporter struct {
	url        string
	httpClient *http.Client
	log        *obslog.Logger

	queue chan CycleReport
	done  chan struct{}
}

// New constructs a Reporter and starts its background sender goroutine. Stop
// must be called to drain and shut it down cleanly.
func New(url string, log *obslog.Logger) *Reporter {
	r := &Reporter{
		url: url,
		httpClient: &http.Client{
			Timeout: defaultSendTimeout,
		},
		log:   log,
		queue: make(chan CycleReport, defaultQueueCapacity),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

// NewCycleReportID produces a fresh correlation ID for one cycle's report.
func NewCycleReportID() string {
	return uuid.New().String()
}

// Enqueue submits a report for delivery without blocking the caller. If the
// internal queue is saturated, the report is dropped and logged — a slow or
// unreachable report endpoint must never stall the scheduler (spec.md §7).
func (r *Reporter) Enqueue(rep CycleReport) {
	select {
	case r.queue <- rep:
	default:
		r.log.Warnf("report: queue full, dropping cycle report %s", rep.CycleReportID)
	}
}

func (r *Reporter) run() {
	defer close(r.done)
	for rep := range r.queue {
		r.deliverWithRetry(rep)
	}
}

func (r *Reporter) deliverWithRetry(rep CycleReport) {
	body, err := json.Marshal(rep)
	if err != nil {
		r.log.Errorf("report: marshal cycle report %s: %v", rep.CycleReportID, err)
		return
	}

	var lastErr error
	for attempt := 1; attempt <= defaultMaxRetries+1; attempt++ {
		if err := r.deliver(body); err == nil {
			return
		} else {
			lastErr = err
		}

		if attempt > defaultMaxRetries {
			break
		}
		time.Sleep(defaultRetryDelay)
	}
	r.log.Errorf("report: cycle report %s failed after retries: %v", rep.CycleReportID, lastErr)
}

func (r *Reporter) deliver(body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultSendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("report: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("report: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("report: post returned status %d", resp.StatusCode)
	}
	return nil
}

// Stop closes the queue and waits for in-flight/queued reports to drain.
func (r *Reporter) Stop() {
	close(r.queue)
	<-r.done
}
