package fakebackend

import (
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Device is one row of the devices view.
type Device struct {
	ID        int64     `json:"id"`
	Serial    string    `json:"serial"`
	Model     string    `json:"model"`
	Status    string    `json:"status"`
	HoldingID *int64    `json:"holding_id"`
	CreatedAt time.Time `json:"created_at"`
}

type deviceRepo struct {
	rows   []Device
	nextID int64
	lock   sync.RWMutex
}

func newDeviceRepo() *deviceRepo {
	return &deviceRepo{nextID: 1}
}

func (r *deviceRepo) seed(n int) {
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		_, _ = r.create(Device{
			Serial:    fmt.Sprintf("SN%04d", i+1),
			Model:     "Pixel 8",
			Status:    "active",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}
}

// create inserts d and reports false when the serial is already taken.
func (r *deviceRepo) create(d Device) (Device, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if slices.ContainsFunc(r.rows, func(existing Device) bool { return existing.Serial == d.Serial }) {
		return Device{}, false
	}
	d.ID = r.nextID
	r.nextID++
	r.rows = append(r.rows, d)
	return d, true
}

func (r *deviceRepo) list(status string) []Device {
	r.lock.RLock()
	defer r.lock.RUnlock()
	out := make([]Device, 0, len(r.rows))
	for _, d := range r.rows {
		if status == "" || d.Status == status {
			out = append(out, d)
		}
	}
	return out
}

// listDevicesHandler serves the view with PostgREST range semantics. Without a
// Range header every row is returned with 200.
func (s *Server) listDevicesHandler(w http.ResponseWriter, r *http.Request) {
	status := strings.TrimPrefix(r.URL.Query().Get("status"), "eq.")
	rows := s.devices.list(status)
	total := len(rows)

	start, end := 0, total-1
	ranged := false
	if header := r.Header.Get("Range"); header != "" {
		var ok bool
		start, end, ok = parseRange(header)
		if !ok {
			writeNativeError(w, http.StatusBadRequest, "PGRST103", "Requested range not satisfiable", "invalid Range header "+header, "")
			return
		}
		ranged = true
	}

	if ranged && start >= total && !(start == 0 && total == 0) {
		w.Header().Set("Content-Range", fmt.Sprintf("*/%d", total))
		writeNativeError(w, http.StatusRequestedRangeNotSatisfiable, "PGRST103", "Requested range not satisfiable",
			fmt.Sprintf("An offset of %d was requested, but there are only %d rows.", start, total), "")
		return
	}
	if end >= total {
		end = total - 1
	}

	page := []Device{}
	if total > 0 {
		page = rows[start : end+1]
	}

	totalPart := "*"
	if strings.Contains(r.Header.Get("Prefer"), "count=exact") {
		totalPart = strconv.Itoa(total)
	}
	if len(page) == 0 {
		w.Header().Set("Content-Range", "*/"+totalPart)
	} else {
		w.Header().Set("Content-Range", fmt.Sprintf("%d-%d/%s", start, end, totalPart))
	}

	code := http.StatusOK
	if ranged && len(page) < total {
		code = http.StatusPartialContent
	}
	writeJSON(w, code, page)
}

type createDeviceParams struct {
	Serial    string `json:"serial"`
	Model     string `json:"model"`
	Status    string `json:"status"`
	HoldingID *int64 `json:"holding_id"`
}

// createDeviceHandler answers like PostgREST with Prefer: return=representation.
func (s *Server) createDeviceHandler(w http.ResponseWriter, r *http.Request) {
	var params createDeviceParams
	if err := decodeParams(r, &params); err != nil {
		writeNativeError(w, http.StatusBadRequest, "PGRST102", "Invalid request body", err.Error(), "")
		return
	}
	if params.Serial == "" {
		writeNativeError(w, http.StatusBadRequest, "23502", `null value in column "serial" violates not-null constraint`, "", "")
		return
	}
	if params.Status == "" {
		params.Status = "active"
	}
	if params.HoldingID == nil {
		params.HoldingID = claimsFrom(r.Context()).HoldingID
	}

	device, ok := s.devices.create(Device{
		Serial:    params.Serial,
		Model:     params.Model,
		Status:    params.Status,
		HoldingID: params.HoldingID,
		CreatedAt: s.nowFunc().UTC(),
	})
	if !ok {
		writeNativeError(w, http.StatusConflict, "23505", `duplicate key value violates unique constraint "devices_serial_key"`,
			fmt.Sprintf("Key (serial)=(%s) already exists.", params.Serial), "")
		return
	}
	writeJSON(w, http.StatusCreated, []Device{device})
}

// parseRange reads "start-end" or "start-" as sent with Range-Unit: items.
func parseRange(header string) (int, int, bool) {
	header = strings.TrimPrefix(strings.TrimSpace(header), "items=")
	startPart, endPart, found := strings.Cut(header, "-")
	if !found {
		return 0, 0, false
	}
	start, err := strconv.Atoi(startPart)
	if err != nil || start < 0 {
		return 0, 0, false
	}
	if endPart == "" {
		return start, int(^uint(0) >> 1), true
	}
	end, err := strconv.Atoi(endPart)
	if err != nil || end < start {
		return 0, 0, false
	}
	return start, end, true
}
