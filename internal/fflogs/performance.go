package fflogs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"raidbot/internal/raid"
	logx "raidbot/pkg/logx"
)

const (
	DefaultRecentCount = 5
	staticReportCount  = 10
	fetchConcurrency   = 4
)

// Service combines the API client with the character registry.
type Service struct {
	client *Client
	reg    *Registry
	log    logx.Logger
}

func NewService(client *Client, reg *Registry, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{client: client, reg: reg, log: log}
}

func (s *Service) Enabled() bool { return s != nil && s.client.Enabled() }

func (s *Service) Registry() *Registry { return s.reg }

// Register looks the character up and records it for userID. The returned
// message is shown to the user on success and on lookup failures.
func (s *Service) Register(ctx context.Context, userID int64, name, server, region string) (string, error) {
	if region == "" {
		region = s.client.Region()
	}
	ch, err := s.client.FindCharacter(ctx, name, server, region)
	switch {
	case errors.Is(err, ErrNotFound):
		return fmt.Sprintf("Character %q not found on server %q (%s)", name, server, strings.ToUpper(region)), nil
	case errors.Is(err, ErrNotConfigured):
		return "Failed to authenticate with FFLogs API", err
	case err != nil:
		s.log.Warn("character lookup failed", logx.String("name", name), logx.String("server", server), logx.Err(err))
		return "Failed to register character with FFLogs", err
	}
	if err := s.reg.Upsert(ctx, userID, ch); err != nil {
		s.log.Error("character save failed", logx.Int64("user", userID), logx.Err(err))
		return "Failed to register character with FFLogs", err
	}
	s.log.Info("character registered", logx.Int64("user", userID), logx.Int64("character", ch.ID), logx.String("server", ch.Server))
	return fmt.Sprintf("Successfully registered character %q on %q", ch.Name, ch.Server), nil
}

// Recent fetches the recent reports of userID's primary character.
func (s *Service) Recent(ctx context.Context, userID int64, count int) (CharacterLogs, bool, error) {
	ch, ok := s.reg.Primary(userID)
	if !ok {
		return CharacterLogs{}, false, nil
	}
	if count <= 0 {
		count = DefaultRecentCount
	}
	logs, err := s.client.RecentReports(ctx, ch.ID, count)
	return logs, true, err
}

// MemberStats is one participant with FFLogs data.
type MemberStats struct {
	Character string
	Server    string
	Role      string
	Logs      int
}

type ZoneStats struct {
	Zone          string
	Pulls         int
	Kills         int
	Participation int
	BestPull      float64
}

// KillRatio is kills over pulls as a percentage string, or "N/A".
func (z ZoneStats) KillRatio() string {
	if z.Pulls == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.1f%%", float64(z.Kills)/float64(z.Pulls)*100)
}

type StaticStats struct {
	Raid    string
	Members []MemberStats
	Zones   []ZoneStats
}

type memberResult struct {
	member  MemberStats
	reports []ReportSummary
	ok      bool
}

// StaticPerformance aggregates recent reports of every participant with a
// registered character. Per-member failures are logged and skipped.
func (s *Service) StaticPerformance(ctx context.Context, ev *raid.Event) (StaticStats, error) {
	type job struct {
		pid  int64
		role string
		ch   Character
	}
	var jobs []job
	for pid, p := range ev.Participants {
		if ch, ok := s.reg.Primary(pid); ok {
			jobs = append(jobs, job{pid: pid, role: p.Role, ch: ch})
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].pid < jobs[j].pid })

	results := make([]memberResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			logs, err := s.client.RecentReports(gctx, j.ch.ID, staticReportCount)
			if err != nil {
				s.log.Warn("member logs fetch failed",
					logx.String("event_id", ev.ID),
					logx.Int64("participant", j.pid),
					logx.Int64("character", j.ch.ID),
					logx.Err(err),
				)
				return nil
			}
			results[i] = memberResult{
				member:  MemberStats{Character: j.ch.Name, Server: j.ch.Server, Role: j.role, Logs: len(logs.Reports)},
				reports: logs.Reports,
				ok:      true,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return StaticStats{}, err
	}
	return aggregate(ev.Name, results), nil
}

func aggregate(name string, results []memberResult) StaticStats {
	st := StaticStats{Raid: name}
	zones := map[string]*ZoneStats{}
	var order []string
	for _, r := range results {
		if !r.ok {
			continue
		}
		st.Members = append(st.Members, r.member)
		for _, rep := range r.reports {
			z, ok := zones[rep.Zone]
			if !ok {
				z = &ZoneStats{Zone: rep.Zone}
				zones[rep.Zone] = z
				order = append(order, rep.Zone)
			}
			z.Pulls += rep.Pulls
			z.Kills += rep.Kills
			z.Participation++
			if rep.HasBestPull && rep.BestPull > z.BestPull {
				z.BestPull = rep.BestPull
			}
		}
	}
	sort.Strings(order)
	for _, k := range order {
		st.Zones = append(st.Zones, *zones[k])
	}
	return st
}

// EventReport renders the post-raid report. It is empty when no participant
// has FFLogs data.
func (s *Service) EventReport(ctx context.Context, ev *raid.Event) (string, error) {
	if !s.Enabled() {
		return "", nil
	}
	st, err := s.StaticPerformance(ctx, ev)
	if err != nil {
		return "", err
	}
	if len(st.Members) == 0 {
		return "", nil
	}
	return FormatEventReport(st), nil
}
