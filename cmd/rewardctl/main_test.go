package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func runCommand(test *testing.T, args ...string) []byte {
	test.Helper()
	cmd := newRootCommand()
	var output bytes.Buffer
	cmd.SetOut(&output)
	cmd.SetArgs(args)
	require.NoError(test, cmd.ExecuteContext(context.Background()))
	return output.Bytes()
}

func TestRedeemAndGachaFlow(test *testing.T) {
	directory := test.TempDir()
	databaseFlag := "--database-url=sqlite://" + filepath.Join(directory, "rewards.db")
	logFlag := "--log-file=" + filepath.Join(directory, "rewards.log")

	runCommand(test, "migrate", databaseFlag, logFlag)
	runCommand(test, "codes", "create", "welcome50", "--amount=50", "--hint=first", databaseFlag, logFlag)
	runCommand(test, "codes", "create", "egg1", "--reward-type=item", "--item-type=GACHA_TICKET", databaseFlag, logFlag)

	var issued issuedView
	require.NoError(test, json.Unmarshal(runCommand(test, "redeem", "WELCOME50", "--user=alice", databaseFlag, logFlag), &issued))
	require.Equal(test, "WELCOME50", issued.Code)
	require.Equal(test, int64(50), issued.PointsGranted)
	require.False(test, issued.Replayed)

	require.NoError(test, json.Unmarshal(runCommand(test, "redeem", "welcome50", "--user=alice", databaseFlag, logFlag), &issued))
	require.True(test, issued.Replayed)

	var played gachaView
	require.NoError(test, json.Unmarshal(runCommand(test, "gacha", "play", "--user=alice", databaseFlag, logFlag), &played))
	require.Equal(test, "EGG1", played.Code)
	require.Equal(test, int64(0), played.RemainingBalance)

	var balance map[string]int64
	require.NoError(test, json.Unmarshal(runCommand(test, "balance", "--user=alice", databaseFlag, logFlag), &balance))
	require.Equal(test, int64(0), balance["Balance"])
	require.Equal(test, int64(50), balance["TotalSpent"])

	var stats map[string]int64
	require.NoError(test, json.Unmarshal(runCommand(test, "codes", "stats", databaseFlag, logFlag), &stats))
	require.Equal(test, int64(2), stats["Claimed"])
}

func TestQuotaLookupCommand(test *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/api/user/self" {
			http.NotFound(writer, request)
			return
		}
		_, _ = writer.Write([]byte(`{"success":true,"data":{"quota":500000,"used_quota":0,"username":"bob"}}`))
	}))
	test.Cleanup(server.Close)

	output := runCommand(test, "quota", "lookup", "sk-live-0001", "",
		"--quota-base-urls="+server.URL, "--quota-query-order=newapi", "--metrics",
		"--log-file="+filepath.Join(test.TempDir(), "rewards.log"))

	var decoded struct {
		Quota   []quotaView        `json:"quota"`
		Metrics map[string]float64 `json:"metrics"`
	}
	require.NoError(test, json.Unmarshal(output, &decoded))
	require.Len(test, decoded.Quota, 2)
	require.Equal(test, "***0001", decoded.Quota[0].Key)
	require.NotNil(test, decoded.Quota[0].Quota)
	require.Equal(test, 1.0, decoded.Quota[0].Quota.Remaining)
	require.Nil(test, decoded.Quota[1].Quota)
	require.Equal(test, 1.0, decoded.Metrics["rewards_quota_lookups_total{result=refreshed}"])
}
