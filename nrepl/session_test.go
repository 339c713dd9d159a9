package nrepl

import "testing"

func TestEnsureCreatesThenReusesSession(t *testing.T) {
	tbl := newSessionTable()
	a := tbl.ensure("fixed-id")
	b := tbl.ensure("fixed-id")
	if a != b {
		t.Fatalf("expected ensure to return the same session for a repeated id")
	}
	if a.CurrentNS != "user" {
		t.Fatalf("expected new sessions to default to the user namespace, got %q", a.CurrentNS)
	}
}

func TestEnsureGeneratesIDWhenEmpty(t *testing.T) {
	tbl := newSessionTable()
	s := tbl.ensure("")
	if s.ID == "" {
		t.Fatalf("expected a generated session id")
	}
}

func TestCloneInheritsParentState(t *testing.T) {
	tbl := newSessionTable()
	parent := tbl.ensure("parent")
	parent.CurrentNS = "my.ns"
	parent.ForwardSystemOutput = true

	child := tbl.clone("parent")
	if child.ID == parent.ID {
		t.Fatalf("expected clone to mint a new session id")
	}
	if child.CurrentNS != "my.ns" || !child.ForwardSystemOutput {
		t.Fatalf("expected clone to inherit parent state, got %+v", child)
	}
}

func TestCloneUnknownParentFallsBackToDefaults(t *testing.T) {
	tbl := newSessionTable()
	child := tbl.clone("never-seen")
	if child.CurrentNS != "user" {
		t.Fatalf("expected default namespace when parent is unknown, got %q", child.CurrentNS)
	}
}

func TestCloseReportsWhetherSessionExisted(t *testing.T) {
	tbl := newSessionTable()
	tbl.ensure("a")
	if !tbl.close("a") {
		t.Fatalf("expected close of an existing session to report true")
	}
	if tbl.close("a") {
		t.Fatalf("expected second close of the same id to report false")
	}
}

func TestIDsAreSorted(t *testing.T) {
	tbl := newSessionTable()
	tbl.ensure("zzz")
	tbl.ensure("aaa")
	tbl.ensure("mmm")
	ids := tbl.ids()
	if len(ids) != 3 || ids[0] != "aaa" || ids[1] != "mmm" || ids[2] != "zzz" {
		t.Fatalf("expected sorted ids, got %v", ids)
	}
}
