package keyword

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want Keyword
	}{
		{"スポーツドリンク 作り方", "スポーツドリンク 作り方"},
		{"  スポーツドリンク　　作り方 ", "スポーツドリンク 作り方"},
		{`"スポーツドリンク"`, "スポーツドリンク"},
		{"「扇風機」 おすすめ", "扇風機 おすすめ"},
		{"ＰＣ　ケース", "pc ケース"},
		{"ｽﾎﾟｰﾂ", "スポーツ"},
		{"iPhone  Case", "iphone case"},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDedupe(t *testing.T) {
	got := Dedupe([]string{"扇風機 おすすめ", "", "扇風機　おすすめ", "エアコン 選び方", `"エアコン 選び方"`})
	want := []Keyword{"扇風機 おすすめ", "エアコン 選び方"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Dedupe = %v, want %v", got, want)
	}
}

func TestLoad_PlainLines(t *testing.T) {
	in := "# seed list\n扇風機 おすすめ\n\nサーキュレーター 静か\n扇風機 おすすめ\n"
	got, err := Load(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []Keyword{"扇風機 おすすめ", "サーキュレーター 静か"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load = %v, want %v", got, want)
	}
}

func TestLoad_RakkoUTF16TSV(t *testing.T) {
	tsv := "\"No\"\t\"キーワード\"\t\"月間検索数\"\n" +
		"1\t\"スポーツドリンク 作り方\"\t1300\n" +
		"2\t\"スポーツドリンク 手作り\"\t880\n"
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	raw, _, err := transform.Bytes(enc, []byte(tsv))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	path := filepath.Join(t.TempDir(), "rakko.csv")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	want := []Keyword{"スポーツドリンク 作り方", "スポーツドリンク 手作り"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LoadFile = %v, want %v", got, want)
	}
}

func TestLoad_ShiftJISCSV(t *testing.T) {
	csv := "キーワード,検索数\n除湿機 衣類乾燥,2400\n"
	raw, _, err := transform.Bytes(japanese.ShiftJIS.NewEncoder(), []byte(csv))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Load(strings.NewReader(string(raw)))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0] != "除湿機 衣類乾燥" {
		t.Errorf("unexpected keywords %v", got)
	}
}

func TestLoad_UTF8BOM(t *testing.T) {
	got, err := Load(strings.NewReader("\xEF\xBB\xBF空気清浄機 ペット\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0] != "空気清浄機 ペット" {
		t.Errorf("unexpected keywords %v", got)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}
