package secrets

import "testing"

func TestEnvName(t *testing.T) {
	cases := map[string]string{
		"SLACK_WHALE_ALERT@10": "SLACK_WHALE_ALERT_10",
		"slack_token":          "SLACK_TOKEN",
		"WETH.icon":            "WETH_ICON",
	}
	for key, want := range cases {
		if got := EnvName(key); got != want {
			t.Fatalf("EnvName(%q): 期望 %q, 实际 %q", key, want, got)
		}
	}
}

func TestEnvResolver(t *testing.T) {
	t.Setenv("SLACK_MONITORING_10", "C-env")

	value, ok := Env{}.Get("SLACK_MONITORING@10")
	if !ok || value != "C-env" {
		t.Fatalf("环境变量解析失败: %q, %v", value, ok)
	}

	if _, ok := (Env{}).Get("SLACK_MISSING@10"); ok {
		t.Fatal("不存在的变量应返回 ok=false")
	}
}

func TestStaticDistinguishesEmptyFromMissing(t *testing.T) {
	s := Static{"present": ""}
	if _, ok := s.Get("present"); !ok {
		t.Fatal("空值但存在的键应返回 ok=true")
	}
	if _, ok := s.Get("absent"); ok {
		t.Fatal("缺失的键应返回 ok=false")
	}
}

func TestLayeredPrecedence(t *testing.T) {
	layered := Layered{
		Static{"key": "first"},
		Static{"key": "second", "other": "fallback"},
	}

	if value, _ := layered.Get("key"); value != "first" {
		t.Fatalf("应命中第一层: %q", value)
	}
	if value, _ := layered.Get("other"); value != "fallback" {
		t.Fatalf("应回落到下一层: %q", value)
	}
	if _, ok := layered.Get("missing"); ok {
		t.Fatal("所有层均未命中时应返回 ok=false")
	}
}
