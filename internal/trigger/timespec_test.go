package trigger_test

import (
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/murmur/internal/trigger"
)

func TestParseDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		spec    string
		want    time.Duration
		wantErr bool
	}{
		{spec: "1h3m10s", want: time.Hour + 3*time.Minute + 10*time.Second},
		{spec: "10s", want: 10 * time.Second},
		{spec: "45m", want: 45 * time.Minute},
		{spec: "2h", want: 2 * time.Hour},
		{spec: "1h30s", want: time.Hour + 30*time.Second},
		{spec: "90m", want: 90 * time.Minute},
		{spec: "1H 5M", want: time.Hour + 5*time.Minute},
		{spec: "0s", wantErr: true},
		{spec: "0h0m0s", wantErr: true},
		{spec: "", wantErr: true},
		{spec: "10", wantErr: true},
		{spec: "10s5m", wantErr: true},
		{spec: "-5s", wantErr: true},
		{spec: "ten minutes", wantErr: true},
		{spec: "6000000h", wantErr: true},
		{spec: "2562048h", wantErr: true},
		{spec: "2562047h47m16s", want: 2562047*time.Hour + 47*time.Minute + 16*time.Second},
		{spec: "2562047h47m17s", wantErr: true},
		{spec: "99999999999999999999s", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			t.Parallel()
			got, err := trigger.ParseDuration(tt.spec)
			if tt.wantErr {
				if !errors.Is(err, trigger.ErrInvalidDuration) {
					t.Fatalf("err = %v, want ErrInvalidDuration", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseClockTime(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("test", 2*3600)
	now := time.Date(2026, 3, 14, 14, 0, 0, 0, loc) // 2:00 PM

	tests := []struct {
		name string
		spec string
		want time.Time
	}{
		{"later today", "3:30 PM", time.Date(2026, 3, 14, 15, 30, 0, 0, loc)},
		{"no space", "3:30PM", time.Date(2026, 3, 14, 15, 30, 0, 0, loc)},
		{"lowercase", "3:30 pm", time.Date(2026, 3, 14, 15, 30, 0, 0, loc)},
		{"dotted", "3:30 p.m.", time.Date(2026, 3, 14, 15, 30, 0, 0, loc)},
		{"hour only", "5 PM", time.Date(2026, 3, 14, 17, 0, 0, 0, loc)},
		{"24h", "18:45", time.Date(2026, 3, 14, 18, 45, 0, 0, loc)},
		{"already passed", "9:00 AM", time.Date(2026, 3, 15, 9, 0, 0, 0, loc)},
		{"exactly now rolls over", "2:00 PM", time.Date(2026, 3, 15, 14, 0, 0, 0, loc)},
		{"midnight", "12:00 AM", time.Date(2026, 3, 15, 0, 0, 0, 0, loc)},
		{"noon passed", "12:00 PM", time.Date(2026, 3, 15, 12, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := trigger.ParseClockTime(tt.spec, now)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			if !got.After(now) {
				t.Errorf("due %v is not after now %v", got, now)
			}
		})
	}
}

func TestParseClockTime_Invalid(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 14, 0, 0, 0, time.UTC)
	for _, spec := range []string{"", "soon", "25:00", "13:00 PM", "3:75 PM", "tomorrow"} {
		if _, err := trigger.ParseClockTime(spec, now); !errors.Is(err, trigger.ErrInvalidClockTime) {
			t.Errorf("ParseClockTime(%q) err = %v, want ErrInvalidClockTime", spec, err)
		}
	}
}

func TestPeriod(t *testing.T) {
	t.Parallel()

	want := map[int]string{
		0: "Night", 4: "Night", 5: "Morning", 11: "Morning",
		12: "Afternoon", 16: "Afternoon", 17: "Evening",
		20: "Evening", 21: "Night", 23: "Night",
	}
	for hour, period := range want {
		if got := trigger.Period(hour); got != period {
			t.Errorf("Period(%d) = %q, want %q", hour, got, period)
		}
	}
}

func TestFormatTimeNow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2026, 1, 1, 9, 5, 0, 0, time.UTC), "9:05 AM Morning"},
		{time.Date(2026, 1, 1, 13, 30, 0, 0, time.UTC), "1:30 PM Afternoon"},
		{time.Date(2026, 1, 1, 18, 0, 0, 0, time.UTC), "6:00 PM Evening"},
		{time.Date(2026, 1, 1, 0, 15, 0, 0, time.UTC), "12:15 AM Night"},
		{time.Date(2026, 1, 1, 4, 59, 0, 0, time.UTC), "4:59 AM Night"},
	}
	for _, tt := range tests {
		if got := trigger.FormatTimeNow(tt.at); got != tt.want {
			t.Errorf("FormatTimeNow(%v) = %q, want %q", tt.at, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		d    time.Duration
		want string
	}{
		{time.Hour + 3*time.Minute + 10*time.Second, "1h 3m 10s"},
		{10 * time.Second, "10s"},
		{2 * time.Hour, "2h"},
		{90 * time.Minute, "1h 30m"},
		{0, "0s"},
	}
	for _, tt := range tests {
		if got := trigger.FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
