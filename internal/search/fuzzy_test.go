package search

import "testing"

func testIndex() *Index {
	return Build([]Entry{
		{ID: "1", Name: "Central Station"},
		{ID: "2", Name: "Central Park West"},
		{ID: "3", Name: "Centralny Dworzec"},
		{ID: "4", Name: "Harbor Terminal"},
		{ID: "5", Name: "Sentral Plaza"}, // trigram-similar to "central"
	})
}

func TestExactSubstringBeatsPrefix(t *testing.T) {
	ix := testIndex()
	results := ix.Search("central station", 5)
	if len(results) == 0 {
		t.Fatal("no results")
	}
	if got := ix.Entry(results[0].Index).ID; got != "1" {
		t.Errorf("top hit = %s, want 1 (exact substring)", got)
	}
}

func TestPrefixBeatsTrigram(t *testing.T) {
	ix := testIndex()
	results := ix.Search("ral central", 5)
	if len(results) == 0 {
		t.Fatal("no results")
	}
	// The query as a whole is a substring of no name. "Centralny Dworzec"
	// has a token starting with "central"; "Sentral Plaza" only shares
	// trigrams with the query and must rank below it.
	var posPrefix, posTrigram = -1, -1
	for i, res := range results {
		switch ix.Entry(res.Index).ID {
		case "3":
			posPrefix = i
		case "5":
			posTrigram = i
		}
	}
	if posPrefix == -1 {
		t.Fatal("prefix match missing from results")
	}
	if posTrigram != -1 && posTrigram < posPrefix {
		t.Errorf("trigram match ranked above prefix match")
	}
}

// Both names contain the query; the shorter one is covered more fully by it
// and scores higher.
func TestShorterNameRanksFirst(t *testing.T) {
	ix := Build([]Entry{
		{ID: "long", Name: "Oak Avenue North Extension"},
		{ID: "short", Name: "Oak Avenue"},
	})
	results := ix.Search("oak avenue", 2)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if ix.Entry(results[0].Index).ID != "short" {
		t.Error("shorter name should rank first")
	}
}

func TestShortQueryFindsPrefix(t *testing.T) {
	ix := testIndex()
	results := ix.Search("ce", 5)
	found := false
	for _, res := range results {
		if ix.Entry(res.Index).ID == "1" {
			found = true
		}
	}
	if !found {
		t.Error("two-letter prefix should still find Central Station")
	}
}

func TestTopKLimit(t *testing.T) {
	ix := testIndex()
	if got := len(ix.Search("central", 2)); got > 2 {
		t.Errorf("got %d results, want at most 2", got)
	}
	if got := ix.Search("central", 0); got != nil {
		t.Error("k=0 should return nothing")
	}
}

func TestNoMatch(t *testing.T) {
	ix := testIndex()
	if results := ix.Search("zzzzqqqq", 5); len(results) != 0 {
		t.Errorf("got %d results for garbage query", len(results))
	}
}

func TestCaseAndPunctuationInsensitive(t *testing.T) {
	ix := Build([]Entry{{ID: "a", Name: "St.-Pierre / Gare"}})
	if results := ix.Search("st pierre", 1); len(results) != 1 {
		t.Fatal("tokenized query should match punctuated name")
	}
	if results := ix.Search("GARE", 1); len(results) != 1 {
		t.Fatal("search must be case-insensitive")
	}
}

func TestDescendingScores(t *testing.T) {
	ix := testIndex()
	results := ix.Search("central", 5)
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("scores not descending at %d", i)
		}
	}
}
