package pagerange

import (
	"reflect"
	"testing"
)

func TestParsePages(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		pageCount int
		want      []int
		wantErr   bool
	}{
		{name: "single page", input: "2", pageCount: 5, want: []int{2}},
		{name: "range", input: "0-2", pageCount: 5, want: []int{0, 1, 2}},
		{name: "mixed", input: "0-1,3", pageCount: 5, want: []int{0, 1, 3}},
		{name: "open ended", input: "3-", pageCount: 6, want: []int{3, 4, 5}},
		{name: "out of range kept", input: "7", pageCount: 3, want: []int{7}},
		{name: "open start out of range kept", input: "9-", pageCount: 3, want: []int{9}},
		{name: "spaces", input: " 1 , 2 ", pageCount: 5, want: []int{1, 2}},
		{name: "reversed range", input: "4-2", wantErr: true},
		{name: "negative", input: "-1", wantErr: true},
		{name: "garbage", input: "a-b", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			got := set.Pages(tt.pageCount)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Pages(%d) = %v, want %v", tt.pageCount, got, tt.want)
			}
		})
	}
}

func TestAll(t *testing.T) {
	got := All().Pages(3)
	want := []int{0, 1, 2}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("All().Pages(3) = %v, want %v", got, want)
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input   string
		want    Size
		wantErr bool
	}{
		{input: "800x600", want: Size{Width: 800, Height: 600}},
		{input: "800", want: Size{Width: 800}},
		{input: "800x", want: Size{Width: 800}},
		{input: "x600", want: Size{Height: 600}},
		{input: "1024X768", want: Size{Width: 1024, Height: 768}},
		{input: "x", wantErr: true},
		{input: "", wantErr: true},
		{input: "axb", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSize(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if *got != tt.want {
				t.Errorf("ParseSize(%q) = %+v, want %+v", tt.input, *got, tt.want)
			}
		})
	}
}
