package types

import (
	"encoding/json"
	"testing"
)

func TestParseNotificationType_UnknownCollapses(t *testing.T) {
	if got := ParseNotificationType("task_assigned"); got != TypeTaskAssigned {
		t.Errorf("ParseNotificationType(task_assigned) = %s", got)
	}
	if got := ParseNotificationType("holiday_party"); got != TypeUnknown {
		t.Errorf("ParseNotificationType(holiday_party) = %s, want unknown", got)
	}
	if got := ParseNotificationType(""); got != TypeUnknown {
		t.Errorf("ParseNotificationType(\"\") = %s, want unknown", got)
	}
}

func TestNotificationType_UnmarshalAtWireBoundary(t *testing.T) {
	var n Notification
	data := []byte(`{"id":"n-1","workspace_id":"ws-1","recipient_id":"u-1","type":"something_new"}`)
	if err := json.Unmarshal(data, &n); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	if n.Type != TypeUnknown {
		t.Errorf("type = %s, want unknown (decoded once at the boundary)", n.Type)
	}
}

func TestTaskValidate(t *testing.T) {
	valid := Task{ID: "t-1", WorkspaceID: "ws-1", Title: "ok", Status: StatusOpen, Priority: 2}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid task rejected: %v", err)
	}

	cases := map[string]Task{
		"missing id":        {WorkspaceID: "ws-1", Title: "x", Status: StatusOpen},
		"missing workspace": {ID: "t-1", Title: "x", Status: StatusOpen},
		"missing title":     {ID: "t-1", WorkspaceID: "ws-1", Status: StatusOpen},
		"bad priority":      {ID: "t-1", WorkspaceID: "ws-1", Title: "x", Status: StatusOpen, Priority: 9},
	}
	for name, task := range cases {
		if err := task.Validate(); err == nil {
			t.Errorf("%s: Validate() accepted invalid task", name)
		}
	}
}

func TestMembershipApproved(t *testing.T) {
	if (Membership{Status: MembershipPending}).Approved() {
		t.Error("pending membership reported approved")
	}
	if !(Membership{Status: MembershipApproved}).Approved() {
		t.Error("approved membership reported unapproved")
	}
}
