package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/rewards/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/rewards/pkg/ledger"
	"github.com/MarkoPoloResearchLab/rewards/pkg/quota"
	"github.com/MarkoPoloResearchLab/rewards/pkg/redeem"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const (
	flagUser        = "user"
	flagLimit       = "limit"
	flagOffset      = "offset"
	flagMetrics     = "metrics"
	defaultPageSize = 20
)

func newMigrateCommand(app *application) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := app.openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			if err := gormstore.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			return writeJSON(cmd, map[string]string{"status": "migrated"})
		},
	}
}

func newCodesCommand(app *application) *cobra.Command {
	cmd := &cobra.Command{Use: "codes", Short: "Administer redemption codes"}
	cmd.AddCommand(newCodesCreateCommand(app))
	cmd.AddCommand(&cobra.Command{
		Use:   "disable CODE",
		Short: "Disable an unclaimed code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := app.domainServices(cmd.Context())
			if err != nil {
				return err
			}
			code, err := current.redeem.Disable(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd, newCodeView(code))
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "expire",
		Short: "Mark active codes past their expiry as expired",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := app.domainServices(cmd.Context())
			if err != nil {
				return err
			}
			expired, err := current.redeem.ExpireOverdue(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd, map[string]int64{"expired": expired})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Count codes per status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := app.domainServices(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := current.redeem.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd, stats)
		},
	})
	return cmd
}

func newCodesCreateCommand(app *application) *cobra.Command {
	var (
		rawKind     string
		amount      int64
		itemType    string
		badgeKey    string
		badgeName   string
		poolRef     string
		description string
		hint        string
		expiresAt   string
	)
	cmd := &cobra.Command{
		Use:   "create CODE",
		Short: "Create an active code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reward, err := buildReward(rawKind, amount, itemType, badgeKey, badgeName, poolRef)
			if err != nil {
				return err
			}
			draft := redeem.CodeDraft{Code: args[0], Reward: reward, Description: description, Hint: hint}
			if strings.TrimSpace(expiresAt) != "" {
				parsed, err := time.Parse(time.RFC3339, expiresAt)
				if err != nil {
					return fmt.Errorf("expires-at: %w", err)
				}
				draft.ExpiresAt = &parsed
			}
			current, err := app.domainServices(cmd.Context())
			if err != nil {
				return err
			}
			code, err := current.redeem.CreateCode(cmd.Context(), draft)
			if err != nil {
				return err
			}
			return writeJSON(cmd, newCodeView(code))
		},
	}
	cmd.Flags().StringVar(&rawKind, "reward-type", string(redeem.RewardPoints), "points, item, badge or api_key")
	cmd.Flags().Int64Var(&amount, "amount", 0, "points or item quantity")
	cmd.Flags().StringVar(&itemType, "item-type", "", "inventory item type")
	cmd.Flags().StringVar(&badgeKey, "badge-key", "", "achievement key")
	cmd.Flags().StringVar(&badgeName, "badge-name", "", "achievement display name")
	cmd.Flags().StringVar(&poolRef, "pool-ref", "", "external key pool reference")
	cmd.Flags().StringVar(&description, "description", "", "admin description")
	cmd.Flags().StringVar(&hint, "hint", "", "hint shown after a claim")
	cmd.Flags().StringVar(&expiresAt, "expires-at", "", "RFC3339 expiry")
	return cmd
}

func buildReward(rawKind string, amount int64, itemType string, badgeKey string, badgeName string, poolRef string) (redeem.Reward, error) {
	kind, err := redeem.ParseRewardKind(rawKind)
	if err != nil {
		return redeem.Reward{}, err
	}
	switch kind {
	case redeem.RewardPoints:
		return redeem.NewPointsReward(amount)
	case redeem.RewardItem:
		if amount == 0 {
			amount = 1
		}
		return redeem.NewItemReward(itemType, amount)
	case redeem.RewardBadge:
		return redeem.NewBadgeReward(badgeKey, badgeName)
	default:
		return redeem.NewExternalKeyReward(poolRef)
	}
}

func newBadgeCommand(app *application) *cobra.Command {
	var definition redeem.AchievementDefinition
	define := &cobra.Command{
		Use:   "define KEY",
		Short: "Create or update a badge definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			definition.Key = args[0]
			current, err := app.domainServices(cmd.Context())
			if err != nil {
				return err
			}
			if err := current.redeem.DefineBadge(cmd.Context(), definition); err != nil {
				return err
			}
			return writeJSON(cmd, definition)
		},
	}
	define.Flags().StringVar(&definition.Name, "name", "", "display name")
	define.Flags().Int64Var(&definition.Points, "points", 0, "points granted with the badge")
	define.Flags().Int64Var(&definition.TargetValue, "target", 1, "progress target")
	cmd := &cobra.Command{Use: "badge", Short: "Administer badge definitions"}
	cmd.AddCommand(define)
	return cmd
}

func newRedeemCommand(app *application) *cobra.Command {
	var ipAddress, userAgent string
	cmd := &cobra.Command{
		Use:   "redeem CODE",
		Short: "Claim a code for a user and issue its reward",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := userFlag(cmd)
			if err != nil {
				return err
			}
			current, err := app.domainServices(cmd.Context())
			if err != nil {
				return err
			}
			issued, err := current.redeem.Redeem(cmd.Context(), args[0], userID, redeem.NewClientInfo(ipAddress, userAgent))
			if err != nil {
				return err
			}
			return writeJSON(cmd, issuedView{
				RecordID:      issued.RecordID,
				Code:          issued.Code,
				Reward:        newRewardView(issued.Reward),
				Hint:          issued.Hint,
				PointsGranted: issued.PointsGranted.Int64(),
				Replayed:      issued.Replayed,
			})
		},
	}
	addUserFlag(cmd)
	cmd.Flags().StringVar(&ipAddress, "ip", "", "client address recorded with the redemption")
	cmd.Flags().StringVar(&userAgent, "user-agent", "", "client user agent recorded with the redemption")
	return cmd
}

func newGachaCommand(app *application) *cobra.Command {
	play := &cobra.Command{
		Use:   "play",
		Short: "Pay the entry fee and claim a random code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := userFlag(cmd)
			if err != nil {
				return err
			}
			current, err := app.domainServices(cmd.Context())
			if err != nil {
				return err
			}
			result, err := current.gacha.Play(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return writeJSON(cmd, gachaView{
				Code:             result.Code,
				Reward:           newRewardView(result.Reward),
				Hint:             result.Hint,
				Cost:             result.Cost.Int64(),
				RemainingBalance: result.RemainingBalance.Int64(),
			})
		},
	}
	addUserFlag(play)
	status := &cobra.Command{
		Use:   "status",
		Short: "Show the entry fee, claimable codes and the user's balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := userFlag(cmd)
			if err != nil {
				return err
			}
			current, err := app.domainServices(cmd.Context())
			if err != nil {
				return err
			}
			result, err := current.gacha.Status(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return writeJSON(cmd, result)
		},
	}
	addUserFlag(status)
	cmd := &cobra.Command{Use: "gacha", Short: "Random code allocation"}
	cmd.AddCommand(play, status)
	return cmd
}

func newBalanceCommand(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show a user's points balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := userFlag(cmd)
			if err != nil {
				return err
			}
			current, err := app.domainServices(cmd.Context())
			if err != nil {
				return err
			}
			balance, err := current.ledger.Balance(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return writeJSON(cmd, balance)
		},
	}
	addUserFlag(cmd)
	return cmd
}

func newGrantCommand(app *application) *cobra.Command {
	var amount int64
	var description string
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Credit points to a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := userFlag(cmd)
			if err != nil {
				return err
			}
			points, err := ledger.NewPositivePoints(amount)
			if err != nil {
				return err
			}
			current, err := app.domainServices(cmd.Context())
			if err != nil {
				return err
			}
			balance, err := current.ledger.Credit(cmd.Context(), userID, points, ledger.ReasonAdminGrant, ledger.Reference{}, description)
			if err != nil {
				return err
			}
			return writeJSON(cmd, balance)
		},
	}
	addUserFlag(cmd)
	cmd.Flags().Int64Var(&amount, "amount", 0, "points to credit")
	cmd.Flags().StringVar(&description, "description", "", "ledger description")
	return cmd
}

func newHistoryCommand(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List a user's points transactions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, limit, offset, err := pageFlags(cmd)
			if err != nil {
				return err
			}
			current, err := app.domainServices(cmd.Context())
			if err != nil {
				return err
			}
			transactions, err := current.ledger.ListTransactions(cmd.Context(), userID, limit, offset)
			if err != nil {
				return err
			}
			return writeJSON(cmd, transactions)
		},
	}
	addPageFlags(cmd)
	return cmd
}

func newRecordsCommand(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "List a user's redemption records, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, limit, offset, err := pageFlags(cmd)
			if err != nil {
				return err
			}
			current, err := app.domainServices(cmd.Context())
			if err != nil {
				return err
			}
			records, err := current.redeem.History(cmd.Context(), userID, limit, offset)
			if err != nil {
				return err
			}
			views := make([]recordView, 0, len(records))
			for _, record := range records {
				views = append(views, recordView{ID: record.ID, CodeID: record.CodeID, Reward: newRewardView(record.Reward), CreatedAt: record.CreatedAt})
			}
			return writeJSON(cmd, views)
		},
	}
	addPageFlags(cmd)
	return cmd
}

func newInventoryCommand(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "List a user's items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := userFlag(cmd)
			if err != nil {
				return err
			}
			current, err := app.domainServices(cmd.Context())
			if err != nil {
				return err
			}
			items, err := current.redeem.Inventory(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return writeJSON(cmd, items)
		},
	}
	addUserFlag(cmd)
	return cmd
}

func newQuotaCommand(app *application) *cobra.Command {
	lookup := &cobra.Command{
		Use:   "lookup KEY...",
		Short: "Resolve quota for one or more external keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := prometheus.NewRegistry()
			service, err := app.quotaService(registry)
			if err != nil {
				return err
			}
			keys := make(map[int]string, len(args))
			for index, key := range args {
				keys[index] = key
			}
			results := quota.LookupBatch(cmd.Context(), service, keys)
			views := make([]quotaView, 0, len(args))
			for index, key := range args {
				view := quotaView{Key: quota.MaskKey(key)}
				if info, ok := results[index]; ok {
					view.Quota = &info
				}
				views = append(views, view)
			}
			output := map[string]any{"quota": views}
			if showMetrics, _ := cmd.Flags().GetBool(flagMetrics); showMetrics {
				counters, err := gatherCounters(registry)
				if err != nil {
					return err
				}
				output["metrics"] = counters
			}
			return writeJSON(cmd, output)
		},
	}
	lookup.Flags().Bool(flagMetrics, false, "include lookup counters in the output")
	cmd := &cobra.Command{Use: "quota", Short: "External quota lookups"}
	cmd.AddCommand(lookup)
	return cmd
}

func gatherCounters(registry *prometheus.Registry) (map[string]float64, error) {
	families, err := registry.Gather()
	if err != nil {
		return nil, err
	}
	counters := make(map[string]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			labels := make([]string, 0, len(metric.GetLabel()))
			for _, label := range metric.GetLabel() {
				labels = append(labels, label.GetName()+"="+label.GetValue())
			}
			counters[family.GetName()+"{"+strings.Join(labels, ",")+"}"] = metric.GetCounter().GetValue()
		}
	}
	return counters, nil
}

func addUserFlag(cmd *cobra.Command) {
	cmd.Flags().String(flagUser, "", "user id")
	_ = cmd.MarkFlagRequired(flagUser)
}

func userFlag(cmd *cobra.Command) (ledger.UserID, error) {
	raw, err := cmd.Flags().GetString(flagUser)
	if err != nil {
		return ledger.UserID{}, err
	}
	return ledger.NewUserID(raw)
}

func addPageFlags(cmd *cobra.Command) {
	addUserFlag(cmd)
	cmd.Flags().Int(flagLimit, defaultPageSize, "page size")
	cmd.Flags().Int(flagOffset, 0, "page offset")
}

func pageFlags(cmd *cobra.Command) (ledger.UserID, int, int, error) {
	userID, err := userFlag(cmd)
	if err != nil {
		return ledger.UserID{}, 0, 0, err
	}
	limit, err := cmd.Flags().GetInt(flagLimit)
	if err != nil {
		return ledger.UserID{}, 0, 0, err
	}
	offset, err := cmd.Flags().GetInt(flagOffset)
	if err != nil {
		return ledger.UserID{}, 0, 0, err
	}
	return userID, limit, offset, nil
}

func writeJSON(cmd *cobra.Command, value any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
