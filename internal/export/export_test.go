package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/text/language"

	"recargas/internal/core"
	"recargas/internal/kpi"
	"recargas/internal/locale"
)

func sample() []core.Recharge {
	return []core.Recharge{
		{ID: 2, Date: time.Date(2024, 2, 10, 8, 5, 0, 0, time.UTC), KWh: 12, Cost: 30.5, Odometer: 1200, Location: "Casa, garagem", Notes: "noite"},
		{ID: 1, Date: time.Date(2024, 1, 3, 19, 0, 0, 0, time.UTC), KWh: 3.5, Cost: 0, Odometer: 1000, Exempt: true},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sample()); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	want := "Data,Local,kWh,Custo,Odometro,Isento,Observacoes\n" +
		"2024-02-10 08:05,\"Casa, garagem\",12.0,30.5,1200.0,False,noite\n" +
		"2024-01-03 19:00,,3.5,0.0,1000.0,True,\n"
	if got := buf.String(); got != want {
		t.Errorf("WriteCSV() =\n%s\nwant\n%s", got, want)
	}
}

func TestFilename(t *testing.T) {
	if Filename(true) != "recharge_export_filtered.csv" || Filename(false) != "recharge_export_complete.csv" {
		t.Error("unexpected export file names")
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, kpi.Compute(sample(), nil)); err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	labels, _ := got["labels"].([]any)
	if len(labels) != 2 || labels[0] != "2024-01" {
		t.Errorf("labels = %v", got["labels"])
	}
}

func TestWritePDF(t *testing.T) {
	var buf bytes.Buffer
	cfg := &core.ComparisonConfig{FuelPrice: 6, FuelEconomy: 12}
	err := WritePDF(&buf, PDFInput{
		Title:     "Relatório de recargas",
		Generated: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Report:    kpi.Compute(sample(), cfg),
		Recharges: sample(),
		Format:    locale.New(language.BrazilianPortuguese),
	})
	if err != nil {
		t.Fatalf("WritePDF() error = %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Errorf("output does not look like a PDF: %q", buf.Bytes()[:10])
	}
}

type fakeS3 struct {
	in   *s3.PutObjectInput
	body string
	err  error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{}, f.err
}

func TestUploader(t *testing.T) {
	fake := &fakeS3{}
	u := NewUploader(fake, "bucket", "/exports/")

	loc, err := u.Upload(context.Background(), "a.csv", ContentType("csv"), strings.NewReader("x"))
	if err != nil {
		t.Fatal(err)
	}
	if loc != "s3://bucket/exports/a.csv" {
		t.Errorf("location = %q", loc)
	}
	if *fake.in.Key != "exports/a.csv" || *fake.in.ContentType != "text/csv; charset=utf-8" || fake.body != "x" {
		t.Errorf("unexpected request %+v body %q", fake.in, fake.body)
	}

	fake.err = errors.New("denied")
	if _, err := u.Upload(context.Background(), "a.csv", ContentType("pdf"), strings.NewReader("x")); err == nil {
		t.Error("expected upload error")
	}
	if NewUploader(fake, "b", "").Key("r.pdf") != "r.pdf" {
		t.Error("empty prefix should keep the name")
	}
}
