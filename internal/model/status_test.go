package model

import (
	"encoding/json"
	"testing"
)

func TestStatusKind_Type(t *testing.T) {
	tests := []struct {
		kind     StatusKind
		expected StatusType
	}{
		{StatusQueued, TypeIndefinite},
		{StatusFetching, TypeIndefinite},
		{StatusDownloading, TypePercentage},
		{StatusConverting, TypePercentage},
		{StatusNormalizing, TypePercentage},
		{StatusEnhancing, TypeIndefinite},
		{StatusFinished, TypeTerminal},
		{StatusError, TypeTerminal},
		{StatusCancelled, TypeTerminal},
	}

	for _, test := range tests {
		result := test.kind.Type()
		if result != test.expected {
			t.Errorf("StatusKind(%s).Type() = %v, expected %v", test.kind, result, test.expected)
		}
	}
}

func TestStatusKind_IsTerminal(t *testing.T) {
	tests := []struct {
		kind     StatusKind
		expected bool
	}{
		{StatusQueued, false},
		{StatusDownloading, false},
		{StatusEnhancing, false},
		{StatusFinished, true},
		{StatusError, true},
		{StatusCancelled, true},
	}

	for _, test := range tests {
		result := test.kind.IsTerminal()
		if result != test.expected {
			t.Errorf("StatusKind(%s).IsTerminal() = %v, expected %v", test.kind, result, test.expected)
		}
	}
}

func TestStatusKind_HasPercentage(t *testing.T) {
	tests := []struct {
		kind     StatusKind
		expected bool
	}{
		{StatusQueued, false},
		{StatusFetching, false},
		{StatusDownloading, true},
		{StatusConverting, true},
		{StatusNormalizing, true},
		{StatusEnhancing, false},
		{StatusFinished, false},
	}

	for _, test := range tests {
		result := test.kind.HasPercentage()
		if result != test.expected {
			t.Errorf("StatusKind(%s).HasPercentage() = %v, expected %v", test.kind, result, test.expected)
		}
	}
}

func TestStatusKind_UnmarshalJSON(t *testing.T) {
	var status TaskStatus
	data := `{"request":{"url":"u","name":"n","artist":"a","album":"al","section":"s"},"status":"DOWNLOADING","percentage":0.4}`
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if status.Status != StatusDownloading {
		t.Errorf("Expected status DOWNLOADING, got %s", status.Status)
	}
	if status.Percentage != 0.4 {
		t.Errorf("Expected percentage 0.4, got %f", status.Percentage)
	}
}

func TestStatusKind_UnmarshalJSON_Unknown(t *testing.T) {
	var status TaskStatus
	data := `{"request":{},"status":"EXPLODED","percentage":0}`
	if err := json.Unmarshal([]byte(data), &status); err == nil {
		t.Error("Expected error for unknown status kind, got nil")
	}
}
