// Command daybookd is the daily-digest daemon: it runs the background sync
// loop, or answers one CLI subcommand and exits, against the same
// sqlite-backed store either way.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"daybook/internal/app"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cmd, args := os.Args[1], os.Args[2:]

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("daybookd: starting")
	}
	defer a.Close(context.Background())

	if err := dispatch(ctx, a, cmd, args); err != nil {
		fmt.Fprintln(os.Stderr, jsonError(err))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: daybookd <command> [flags]

commands:
  start                                  run the background sync loop until interrupted
  sync [-sources slack,atlassian] [-tz N]
  sync-status
  resync -date YYYY-MM-DD [-tz N]
  digest-daily [-date YYYY-MM-DD] [-tz N]
  digest-weekly [-week YYYY-MM-DD] [-tz N]
  weekly-breakdown [-week YYYY-MM-DD] [-tz N]
  save-api-key -key KEY
  has-api-key
  save-gemini-credentials -json PATH [-region REGION]
  verify-gemini
  gemini-auth-type
  connect-slack
  connect-atlassian
  select-atlassian-resource -cloud-id ID
  get-preferences
  save-preferences -json JSON
  pipeline-status
  data-stats
  clear-data
  factory-reset`)
}

func dispatch(ctx context.Context, a *app.App, cmd string, args []string) error {
	switch cmd {
	case "start":
		return runStart(ctx, a)
	case "sync":
		return runSync(ctx, a, args)
	case "sync-status":
		return runSyncStatus(ctx, a)
	case "resync":
		return runResync(ctx, a, args)
	case "digest-daily":
		return runDigestDaily(ctx, a, args)
	case "digest-weekly":
		return runDigestWeekly(ctx, a, args)
	case "weekly-breakdown":
		return runWeeklyBreakdown(ctx, a, args)
	case "save-api-key":
		return runSaveAPIKey(ctx, a, args)
	case "has-api-key":
		return runHasAPIKey(ctx, a)
	case "save-gemini-credentials":
		return runSaveGeminiCredentials(ctx, a, args)
	case "verify-gemini":
		return a.VerifyGeminiConnection(ctx)
	case "gemini-auth-type":
		return runGeminiAuthType(ctx, a)
	case "connect-slack":
		return a.ConnectSlack(ctx)
	case "connect-atlassian":
		return runConnectAtlassian(ctx, a)
	case "select-atlassian-resource":
		return runSelectAtlassianResource(ctx, a, args)
	case "get-preferences":
		return runGetPreferences(ctx, a)
	case "save-preferences":
		return runSavePreferences(ctx, a, args)
	case "pipeline-status":
		return printJSON(a.GetPipelineStatus(ctx))
	case "data-stats":
		return runDataStats(ctx, a)
	case "clear-data":
		return runClearData(ctx, a)
	case "factory-reset":
		return a.FactoryReset(ctx)
	default:
		usage()
		return fmt.Errorf("daybookd: unknown command %q", cmd)
	}
}

func runStart(ctx context.Context, a *app.App) error {
	a.StartBackgroundSync(ctx)
	log.Info().Msg("daybookd: background sync loop started")
	<-ctx.Done()
	log.Info().Msg("daybookd: shutting down")
	return nil
}

func runSync(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	sources := fs.String("sources", "", "comma-separated source list, empty for all")
	tz := fs.Int("tz", 0, "timezone offset in minutes, JS getTimezoneOffset convention")
	if err := fs.Parse(args); err != nil {
		return err
	}
	result, err := a.StartSync(ctx, splitCSV(*sources), *tz)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runSyncStatus(ctx context.Context, a *app.App) error {
	status, err := a.GetSyncStatus(ctx)
	if err != nil {
		return err
	}
	return printJSON(status)
}

func runResync(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("resync", flag.ExitOnError)
	date := fs.String("date", "", "local date YYYY-MM-DD to resync")
	tz := fs.Int("tz", 0, "timezone offset in minutes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *date == "" {
		return fmt.Errorf("daybookd: resync requires -date")
	}
	result, err := a.ResyncHistoricalDay(ctx, *date, *tz)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runDigestDaily(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("digest-daily", flag.ExitOnError)
	date := fs.String("date", "", "local date YYYY-MM-DD, today if empty")
	tz := fs.Int("tz", 0, "timezone offset in minutes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	resp, err := a.GetDailyDigest(ctx, *date, *tz)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runDigestWeekly(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("digest-weekly", flag.ExitOnError)
	week := fs.String("week", "", "local week start YYYY-MM-DD (Monday), current week if empty")
	tz := fs.Int("tz", 0, "timezone offset in minutes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	resp, err := a.GetWeeklyDigest(ctx, *week, *tz)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runWeeklyBreakdown(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("weekly-breakdown", flag.ExitOnError)
	week := fs.String("week", "", "local week start YYYY-MM-DD (Monday), current week if empty")
	tz := fs.Int("tz", 0, "timezone offset in minutes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	breakdown, err := a.GenerateWeeklyBreakdown(ctx, *week, *tz)
	if err != nil {
		return err
	}
	return printJSON(breakdown)
}

func runSaveAPIKey(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("save-api-key", flag.ExitOnError)
	key := fs.String("key", "", "Gemini API key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *key == "" {
		return fmt.Errorf("daybookd: save-api-key requires -key")
	}
	return a.SaveAPIKey(ctx, *key)
}

func runHasAPIKey(ctx context.Context, a *app.App) error {
	ok, err := a.HasAPIKey(ctx)
	if err != nil {
		return err
	}
	return printJSON(map[string]bool{"hasApiKey": ok})
}

func runSaveGeminiCredentials(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("save-gemini-credentials", flag.ExitOnError)
	jsonPath := fs.String("json", "", "path to a service account JSON key file")
	region := fs.String("region", "", "Vertex AI region override")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *jsonPath == "" {
		return fmt.Errorf("daybookd: save-gemini-credentials requires -json")
	}
	raw, err := os.ReadFile(*jsonPath)
	if err != nil {
		return fmt.Errorf("daybookd: reading %s: %w", *jsonPath, err)
	}
	return a.SaveGeminiServiceAccountCredentials(ctx, string(raw), *region)
}

func runGeminiAuthType(ctx context.Context, a *app.App) error {
	authType, err := a.GeminiAuthType(ctx)
	if err != nil {
		return err
	}
	return printJSON(map[string]string{"authType": authType})
}

func runConnectAtlassian(ctx context.Context, a *app.App) error {
	result, err := a.ConnectAtlassian(ctx)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runSelectAtlassianResource(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("select-atlassian-resource", flag.ExitOnError)
	cloudID := fs.String("cloud-id", "", "Atlassian cloud resource id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *cloudID == "" {
		return fmt.Errorf("daybookd: select-atlassian-resource requires -cloud-id")
	}
	return a.SelectAtlassianResource(ctx, *cloudID)
}

func runGetPreferences(ctx context.Context, a *app.App) error {
	prefs, err := a.GetPreferences(ctx)
	if err != nil {
		return err
	}
	return printJSON(prefs)
}

func runSavePreferences(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("save-preferences", flag.ExitOnError)
	raw := fs.String("json", "", "preferences object as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var prefs app.Preferences
	if err := json.Unmarshal([]byte(*raw), &prefs); err != nil {
		return fmt.Errorf("daybookd: parsing -json: %w", err)
	}
	return a.SavePreferences(ctx, prefs)
}

func runDataStats(ctx context.Context, a *app.App) error {
	stats, err := a.DataStats(ctx)
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func runClearData(ctx context.Context, a *app.App) error {
	result, err := a.ClearSyncedData(ctx)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func jsonError(err error) string {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(b)
}
