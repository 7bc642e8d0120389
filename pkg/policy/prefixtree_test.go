package policy

import "testing"

func TestPrefixTreeMatchReturnsLongestCommonPrefix(t *testing.T) {
	tree := NewPrefixTree(0)
	tree.Insert("hello world", "worker-a")

	matchLen, workers := tree.Match("hello there")
	if matchLen != len("hello ") {
		t.Fatalf("expected match length %d, got %d", len("hello "), matchLen)
	}
	if _, ok := workers["worker-a"]; !ok {
		t.Fatalf("expected worker-a stamped at the matched node, got %v", workers)
	}
}

func TestPrefixTreeMatchWithNoSharedPrefixReturnsZero(t *testing.T) {
	tree := NewPrefixTree(0)
	tree.Insert("hello world", "worker-a")

	matchLen, workers := tree.Match("goodbye")
	if matchLen != 0 {
		t.Fatalf("expected zero-length match, got %d", matchLen)
	}
	if len(workers) != 0 {
		t.Fatalf("expected no workers stamped at the root, got %v", workers)
	}
}

func TestPrefixTreeResetClearsSizeAndWorkers(t *testing.T) {
	tree := NewPrefixTree(0)
	tree.Insert("abc", "worker-a")
	if tree.Size() == 0 {
		t.Fatal("expected non-zero size after insert")
	}
	tree.Reset()
	if tree.Size() != 0 {
		t.Fatalf("expected size 0 after Reset, got %d", tree.Size())
	}
	if matchLen, _ := tree.Match("abc"); matchLen != 0 {
		t.Fatalf("expected no match after Reset, got matchLen %d", matchLen)
	}
}

func TestPrefixTreeEvictsLeastRecentlyAccessedLeavesUntilUnderMaxSize(t *testing.T) {
	tree := NewPrefixTree(2)
	tree.Insert("a", "worker-a")
	tree.Insert("b", "worker-b")
	tree.Insert("c", "worker-c")

	if tree.Size() != 3 {
		t.Fatalf("expected size 3 before eviction, got %d", tree.Size())
	}
	tree.Evict()
	if tree.Size() > 2 {
		t.Fatalf("expected size at or under max 2 after eviction, got %d", tree.Size())
	}

	if matchLen, _ := tree.Match("a"); matchLen != 0 {
		t.Fatal("expected the oldest-inserted leaf 'a' evicted first")
	}
}
