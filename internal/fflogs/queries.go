package fflogs

import (
	"context"
	"strings"
	"time"
)

const characterQuery = `query($name: String!, $server: String!, $region: String!) {
  characterData {
    character(name: $name, serverSlug: $server, serverRegion: $region) {
      id
      name
      server { name region { name } }
      lodestoneID
    }
  }
}`

const reportsQuery = `query($id: Int!, $limit: Int!) {
  characterData {
    character(id: $id) {
      name
      server { name region { name } }
      recentReports(limit: $limit) {
        data {
          code
          title
          startTime
          endTime
          zone { name }
          fights { name kill fightPercentage }
        }
      }
    }
  }
}`

const reportURLPrefix = "https://www.fflogs.com/reports/"

// Character is a registered FFLogs character.
type Character struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Server      string `json:"server"`
	Region      string `json:"region"`
	LodestoneID int64  `json:"lodestone_id,omitempty"`
}

type apiServer struct {
	Name   string `json:"name"`
	Region struct {
		Name string `json:"name"`
	} `json:"region"`
}

type apiCharacter struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Server      apiServer `json:"server"`
	LodestoneID int64     `json:"lodestoneID"`
}

type apiFight struct {
	Name            string  `json:"name"`
	Kill            bool    `json:"kill"`
	FightPercentage float64 `json:"fightPercentage"`
}

type apiReport struct {
	Code      string     `json:"code"`
	Title     string     `json:"title"`
	StartTime int64      `json:"startTime"`
	EndTime   int64      `json:"endTime"`
	Zone      *apiZone   `json:"zone"`
	Fights    []apiFight `json:"fights"`
}

type apiZone struct {
	Name string `json:"name"`
}

// FindCharacter looks a character up by name and server.
func (c *Client) FindCharacter(ctx context.Context, name, server, region string) (Character, error) {
	if region == "" {
		region = c.cfg.Region
	}
	var out struct {
		CharacterData struct {
			Character *apiCharacter `json:"character"`
		} `json:"characterData"`
	}
	vars := map[string]any{
		"name":   name,
		"server": serverSlug(server),
		"region": strings.ToLower(region),
	}
	if err := c.query(ctx, characterQuery, vars, &out); err != nil {
		return Character{}, err
	}
	ch := out.CharacterData.Character
	if ch == nil {
		return Character{}, ErrNotFound
	}
	return Character{
		ID:          ch.ID,
		Name:        ch.Name,
		Server:      ch.Server.Name,
		Region:      ch.Server.Region.Name,
		LodestoneID: ch.LodestoneID,
	}, nil
}

// ReportSummary condenses one report.
type ReportSummary struct {
	Code     string
	Title    string
	Zone     string
	Start    time.Time
	Duration time.Duration
	Pulls    int
	Kills    int
	// BestPull is the furthest wipe as percent progress. Zero with
	// HasBestPull false means every pull was a kill.
	BestPull    float64
	HasBestPull bool
	URL         string
}

// CharacterLogs is a character's recent reports.
type CharacterLogs struct {
	Name    string
	Server  string
	Region  string
	Reports []ReportSummary
}

// RecentReports fetches up to limit recent reports of a character.
func (c *Client) RecentReports(ctx context.Context, characterID int64, limit int) (CharacterLogs, error) {
	if limit <= 0 {
		limit = 5
	}
	var out struct {
		CharacterData struct {
			Character *struct {
				Name          string    `json:"name"`
				Server        apiServer `json:"server"`
				RecentReports struct {
					Data []apiReport `json:"data"`
				} `json:"recentReports"`
			} `json:"character"`
		} `json:"characterData"`
	}
	vars := map[string]any{"id": characterID, "limit": limit}
	if err := c.query(ctx, reportsQuery, vars, &out); err != nil {
		return CharacterLogs{}, err
	}
	ch := out.CharacterData.Character
	if ch == nil {
		return CharacterLogs{}, ErrNotFound
	}
	logs := CharacterLogs{Name: ch.Name, Server: ch.Server.Name, Region: ch.Server.Region.Name}
	for _, r := range ch.RecentReports.Data {
		logs.Reports = append(logs.Reports, summarize(r))
	}
	return logs, nil
}

func summarize(r apiReport) ReportSummary {
	s := ReportSummary{
		Code:     r.Code,
		Title:    r.Title,
		Start:    time.UnixMilli(r.StartTime).UTC(),
		Duration: time.Duration(r.EndTime-r.StartTime) * time.Millisecond,
		Pulls:    len(r.Fights),
		URL:      reportURLPrefix + r.Code,
	}
	if r.Zone != nil {
		s.Zone = r.Zone.Name
	}
	lowest := 100.0
	for _, f := range r.Fights {
		if f.Kill {
			s.Kills++
			continue
		}
		if f.FightPercentage < lowest {
			lowest = f.FightPercentage
		}
	}
	if lowest < 100 {
		s.BestPull = 100 - lowest
		s.HasBestPull = true
	}
	return s
}

func serverSlug(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "-"))
}
