package redeem

import (
	"errors"
	"strings"
	"testing"
)

func TestParseRewardDecodesStoredShapes(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name    string
		kind    string
		value   string
		want    func(test *testing.T) Reward
		wantErr error
	}{
		{
			name:  "points",
			kind:  "points",
			value: `{"amount":50}`,
			want:  func(test *testing.T) Reward { return mustPointsReward(test, 50) },
		},
		{
			name:  "item default amount",
			kind:  "item",
			value: `{"item_type":"GACHA_TICKET"}`,
			want:  func(test *testing.T) Reward { return mustItemReward(test, "GACHA_TICKET", 1) },
		},
		{
			name:  "badge",
			kind:  "BADGE",
			value: `{"badge_key":"egg_hunter","badge_name":"Egg Hunter"}`,
			want:  func(test *testing.T) Reward { return mustBadgeReward(test, "egg_hunter", "Egg Hunter") },
		},
		{name: "unknown kind", kind: "coupon", value: `{}`, wantErr: ErrInvalidReward},
		{name: "zero points", kind: "points", value: `{"amount":0}`, wantErr: ErrInvalidReward},
		{name: "broken json", kind: "item", value: `{`, wantErr: ErrInvalidReward},
		{name: "missing pool", kind: "api_key", value: `{}`, wantErr: ErrInvalidReward},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			reward, err := ParseReward(testCase.kind, []byte(testCase.value))
			if testCase.wantErr != nil {
				if !errors.Is(err, testCase.wantErr) {
					test.Fatalf("expected %v, got %v", testCase.wantErr, err)
				}
				return
			}
			if err != nil {
				test.Fatalf("parse: %v", err)
			}
			if reward != testCase.want(test) {
				test.Fatalf("expected %+v, got %+v", testCase.want(test), reward)
			}
		})
	}
}

func TestRewardValueRoundTripKeepsItemAmount(test *testing.T) {
	test.Parallel()
	reward := mustItemReward(test, "GACHA_TICKET", 3)
	value, err := reward.MarshalValue()
	if err != nil {
		test.Fatalf("marshal: %v", err)
	}
	if string(value) != `{"item_type":"GACHA_TICKET","amount":3}` {
		test.Fatalf("unexpected value %s", value)
	}
	if _, err := (Reward{}).MarshalValue(); !errors.Is(err, ErrInvalidReward) {
		test.Fatalf("expected ErrInvalidReward for empty reward, got %v", err)
	}
}

func TestBadgeNameDefaultsToKey(test *testing.T) {
	test.Parallel()
	reward := mustBadgeReward(test, "egg_hunter", " ")
	if reward.BadgeName() != "egg_hunter" || reward.Preview() != "badge egg_hunter" {
		test.Fatalf("unexpected badge reward: %+v", reward)
	}
}

func TestNormalizeCodeAndClientInfo(test *testing.T) {
	test.Parallel()
	normalized, err := NormalizeCode("  welcome50\t")
	if err != nil || normalized != "WELCOME50" {
		test.Fatalf("expected WELCOME50, got %q %v", normalized, err)
	}
	client := NewClientInfo(" 127.0.0.1 ", strings.Repeat("a", maxUserAgentLength+20))
	if client.IPAddress != "127.0.0.1" || len(client.UserAgent) != maxUserAgentLength {
		test.Fatalf("unexpected client info: %q len=%d", client.IPAddress, len(client.UserAgent))
	}
	if _, err := ParseCodeStatus("archived"); !errors.Is(err, ErrInvalidCodeStatus) {
		test.Fatalf("expected ErrInvalidCodeStatus, got %v", err)
	}
}
