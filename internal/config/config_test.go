package config

import "testing"

func TestDecodeSingleCluster(t *testing.T) {
	data := []byte(`{
		"clusters": [
			{
				"name": "prod",
				"clusterId": "prod-1",
				"listenAddr": "0.0.0.0:9092",
				"upstreamBootstrap": "broker:9092",
				"kekId": "alias/prod-kek",
				"idleTimeout": "5m",
				"encryptedTopics": {"orders": {"encryptHeaders": true}}
			}
		]
	}`)

	f, err := Decode(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.Clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(f.Clusters))
	}
	vc := f.Clusters[0]
	if vc.ClusterID != "prod-1" || vc.ListenAddr != "0.0.0.0:9092" {
		t.Fatalf("unexpected decode: %+v", vc)
	}
	d, err := vc.IdleTimeoutDuration()
	if err != nil {
		t.Fatalf("unexpected duration error: %v", err)
	}
	if d.String() != "5m0s" {
		t.Fatalf("expected 5m0s idle timeout, got %s", d)
	}
	scheme, ok := vc.EncryptedTopics["orders"]
	if !ok || !scheme.EncryptHeaders {
		t.Fatalf("expected orders topic scheme with EncryptHeaders=true, got %+v", vc.EncryptedTopics)
	}
}

func TestDecodeRejectsDuplicateTopLevelKey(t *testing.T) {
	data := []byte(`{
		"clusters": [
			{"clusterId": "a", "listenAddr": ":9092", "clusterId": "b"}
		]
	}`)
	if _, err := Decode(data); err == nil {
		t.Fatal("expected an error for duplicate top-level key")
	}
}

func TestDecodeRejectsDuplicateNestedKey(t *testing.T) {
	data := []byte(`{
		"clusters": [
			{
				"clusterId": "a",
				"listenAddr": ":9092",
				"authLimiter": {"maxAttempts": 5, "maxAttempts": 10, "window": "30s", "redisAddr": ""}
			}
		]
	}`)
	if _, err := Decode(data); err == nil {
		t.Fatal("expected an error for duplicate key nested under authLimiter")
	}
}

func TestDecodeRejectsDuplicateClusterID(t *testing.T) {
	data := []byte(`{
		"clusters": [
			{"clusterId": "a", "listenAddr": ":9092"},
			{"clusterId": "a", "listenAddr": ":9093"}
		]
	}`)
	if _, err := Decode(data); err == nil {
		t.Fatal("expected an error for duplicate clusterId across entries")
	}
}

func TestDecodeRejectsDuplicateListenAddr(t *testing.T) {
	data := []byte(`{
		"clusters": [
			{"clusterId": "a", "listenAddr": ":9092"},
			{"clusterId": "b", "listenAddr": ":9092"}
		]
	}`)
	if _, err := Decode(data); err == nil {
		t.Fatal("expected an error for duplicate listenAddr across entries")
	}
}

func TestDecodeRequiresClusterID(t *testing.T) {
	data := []byte(`{"clusters": [{"listenAddr": ":9092"}]}`)
	if _, err := Decode(data); err == nil {
		t.Fatal("expected an error when clusterId is missing")
	}
}

func TestIdleTimeoutDurationDefaultsToZero(t *testing.T) {
	vc := VirtualCluster{}
	d, err := vc.IdleTimeoutDuration()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 0 {
		t.Fatalf("expected zero duration when unset, got %s", d)
	}
}
