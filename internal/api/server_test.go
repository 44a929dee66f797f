package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/dgallion1/docfill/internal/config"
	"github.com/dgallion1/docfill/internal/generate"
	"github.com/dgallion1/docfill/internal/personnel"
	"github.com/dgallion1/docfill/internal/profile"
	"github.com/dgallion1/docfill/internal/uploads"
)

const wordNS = `http://schemas.openxmlformats.org/wordprocessingml/2006/main`

func docx(t *testing.T, body string) []byte {
	t.Helper()
	files := []struct{ name, data string }{
		{"[Content_Types].xml", `<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="xml" ContentType="application/xml"/></Types>`},
		{"_rels/.rels", `<?xml version="1.0"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/></Relationships>`},
		{"word/document.xml", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?><w:document xmlns:w="` + wordNS + `"><w:body>` + body + `<w:sectPr/></w:body></w:document>`},
		{"word/_rels/document.xml.rels", `<?xml version="1.0"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`},
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f.name)
		require.NoError(t, err)
		_, err = io.WriteString(w, f.data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func documentXML(t *testing.T, data []byte) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			rc, err := f.Open()
			require.NoError(t, err)
			defer rc.Close()
			b, err := io.ReadAll(rc)
			require.NoError(t, err)
			return string(b)
		}
	}
	t.Fatal("word/document.xml missing")
	return ""
}

func scheduleXLSX(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	rows := [][]any{
		{"ТО №", "Руководитель", "Толщина"},
		{"0208", "Иванов", 6},
		{"0209", "Иванов", 8.5},
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

const profilesYAML = `
profiles:
  - name: letter
    title: Письмо
    template: letter.docx
    output: "Письмо_{company_name}"
    form:
      company_name: [company]
  - name: report
    title: Отчёт
    template: report.docx
    output: "{report_number}"
    key_column: "ТО №"
    key_tokens: [report_number]
    personnel:
      enabled: true
      leader_column: {header: "Руководитель", token: leader}
    columns:
      - {header: "Толщина", token: wall_thic, format: decimal_comma}
`

type testServer struct {
	srv    *Server
	people *personnel.Store
}

func newTestServer(t *testing.T, adminKey string) testServer {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "letter.docx"),
		docx(t, `<w:p><w:r><w:t>Уважаемые {{company}}</w:t></w:r></w:p>`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.docx"),
		docx(t, `<w:p><w:r><w:t xml:space="preserve">№ {{report_number}}: {{leader_short}} и {{worker_short}}, {{wall_thic}} мм</w:t></w:r></w:p>`), 0o644))

	set, err := profile.Parse([]byte(profilesYAML), dir)
	require.NoError(t, err)

	people, err := personnel.Open(ctx, ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { people.Close() })
	_, err = people.Add(ctx, personnel.Employee{Name: "Иван", Patronymic: "Петрович", Surname: "Иванов", TeamNumber: 1, License: "УЗК"})
	require.NoError(t, err)
	_, err = people.Add(ctx, personnel.Employee{Name: "Олег", Surname: "Смирнов", TeamNumber: 1, License: "ВИК"})
	require.NoError(t, err)

	reg, err := uploads.Open(filepath.Join(dir, "data"), time.Hour, nil)
	require.NoError(t, err)

	cfg := config.Config{
		MaxUploadBytes:  1 << 20,
		ScheduleMaxRows: 100,
		AdminAPIKey:     adminKey,
	}
	svc := generate.NewService(set, people, generate.Options{OutputDir: filepath.Join(dir, "out"), ScheduleMaxRows: cfg.ScheduleMaxRows}, nil)
	srv, err := NewServer(svc, reg, people, slog.New(slog.DiscardHandler), cfg)
	require.NoError(t, err)
	return testServer{srv: srv, people: people}
}

type part struct {
	field, filename string
	data            []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...part) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		w, err := mw.CreateFormFile(f.field, f.filename)
		require.NoError(t, err)
		_, err = w.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (ts testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	return rec
}

func (ts testServer) postForm(t *testing.T, path string, fields map[string]string, files ...part) *httptest.ResponseRecorder {
	body, ct := multipartBody(t, fields, files...)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ct)
	return ts.do(req)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, "")
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "server is running", body["status"])
	assert.Equal(t, "192.0.2.1", body["client_ip"])
}

func TestHome_ListsProfiles(t *testing.T) {
	ts := newTestServer(t, "")
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "<code>letter</code>")
	assert.Contains(t, rec.Body.String(), "<table>")
}

func TestGenerate_FormProfile(t *testing.T) {
	ts := newTestServer(t, "")
	rec := ts.postForm(t, "/generate/letter", map[string]string{"company_name": "ООО Ромашка"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, docxContentType, rec.Header().Get("Content-Type"))
	_, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "Письмо_ООО Ромашка.docx", params["filename"])
	assert.Contains(t, documentXML(t, rec.Body.Bytes()), "Уважаемые ООО Ромашка")
}

func TestGenerate_UnknownProfile(t *testing.T) {
	ts := newTestServer(t, "")
	rec := ts.postForm(t, "/generate/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unknown profile", decode(t, rec)["error"])
}

func TestGenerate_ScheduleUploadThenReuse(t *testing.T) {
	ts := newTestServer(t, "")
	rec := ts.postForm(t, "/generate/report", map[string]string{"TO_number": "0209"},
		part{field: "graf_file", filename: "график.xlsx", data: scheduleXLSX(t)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, documentXML(t, rec.Body.Bytes()), "№ 0209: И. П. Иванов и О. Смирнов, 8,5 мм")

	id := rec.Header().Get("X-Schedule-Id")
	require.NotEmpty(t, id)

	rec = ts.postForm(t, "/generate/report", map[string]string{"TO_number": "0208", "schedule_id": id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, documentXML(t, rec.Body.Bytes()), "№ 0208: И. П. Иванов и О. Смирнов, 6,0 мм")

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	stats := decode(t, rec)
	assert.Equal(t, float64(2), stats["documents_generated"])
	assert.Equal(t, float64(1), stats["stored_schedules"])
}

func TestGenerate_Errors(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.postForm(t, "/generate/report", map[string]string{"TO_number": "0208"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.postForm(t, "/generate/report", map[string]string{"TO_number": "0208", "schedule_id": "not-a-uuid"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.postForm(t, "/generate/report", map[string]string{"TO_number": "7777"},
		part{field: "graf_file", filename: "g.xlsx", data: scheduleXLSX(t)})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "report number not found in schedule", decode(t, rec)["error"])

	rec = ts.postForm(t, "/generate/report", map[string]string{"TO_number": "0208"},
		part{field: "graf_file", filename: "g.xlsx", data: []byte("junk")})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSchedules_UploadListDownload(t *testing.T) {
	ts := newTestServer(t, "")
	data := scheduleXLSX(t)

	rec := ts.postForm(t, "/schedules", map[string]string{"profile": "report"}, part{field: "file", filename: "график.xlsx", data: data})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, []any{"0208", "0209"}, body["reports"])
	assert.Equal(t, true, body["key_found"])
	id := body["schedule"].(map[string]any)["id"].(string)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/schedules", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, rec)["schedules"].([]any)
	require.Len(t, list, 1)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/schedules/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, data, rec.Body.Bytes())

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/schedules/00000000-0000-0000-0000-000000000000", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSchedules_RejectsOtherFiles(t *testing.T) {
	ts := newTestServer(t, "")
	rec := ts.postForm(t, "/schedules", nil, part{field: "file", filename: "notes.txt", data: []byte("x")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.postForm(t, "/schedules", nil, part{field: "file", filename: "broken.xlsx", data: []byte("x")})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestTemplates(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/templates/report", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, documentXML(t, rec.Body.Bytes()), "{{report_number}}")

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/templates/report/placeholders", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"{{leader_short}}", "{{report_number}}", "{{wall_thic}}", "{{worker_short}}"},
		decode(t, rec)["placeholders"])

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/templates/nope/placeholders", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEmployees_AuthAndCRUD(t *testing.T) {
	ts := newTestServer(t, "secret")

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/employees", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["employees"], 2)

	newEmployee := `{"name":"Анна","surname":"Кузнецова","team_number":2,"license":"РК"}`
	req := httptest.NewRequest(http.MethodPost, "/api/employees", strings.NewReader(newEmployee))
	rec = ts.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/employees", strings.NewReader(newEmployee))
	req.Header.Set("Authorization", "Bearer secret")
	rec = ts.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	added := decode(t, rec)
	assert.Equal(t, personnel.DefaultPosition, added["position"])
	id := int64(added["id"].(float64))

	req = httptest.NewRequest(http.MethodPost, "/api/employees", strings.NewReader(`{"name":"Без фамилии","team_number":1,"license":"x"}`))
	req.Header.Set("Authorization", "Bearer secret")
	assert.Equal(t, http.StatusBadRequest, ts.do(req).Code)

	path := "/api/employees/" + jsonNumber(id)
	req = httptest.NewRequest(http.MethodDelete, path, nil)
	req.Header.Set("Authorization", "Bearer secret")
	assert.Equal(t, http.StatusNoContent, ts.do(req).Code)

	req = httptest.NewRequest(http.MethodDelete, path, nil)
	req.Header.Set("Authorization", "Bearer secret")
	assert.Equal(t, http.StatusNotFound, ts.do(req).Code)
}

func TestEmployees_GetUpdateAndLicenses(t *testing.T) {
	ts := newTestServer(t, "secret")
	ctx := context.Background()
	leader, ok, err := ts.people.FindBySurname(ctx, "Иванов")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, ts.people.SetInstrumentTable(ctx, leader.ID, "<w:tbl/>"))
	path := "/api/employees/" + jsonNumber(leader.ID)

	update := `{"license_number":"УД-17","position":"Начальник участка"}`
	req := httptest.NewRequest(http.MethodPut, path, strings.NewReader(update))
	assert.Equal(t, http.StatusUnauthorized, ts.do(req).Code)

	req = httptest.NewRequest(http.MethodPut, path, strings.NewReader(update))
	req.Header.Set("Authorization", "Bearer secret")
	rec := ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode(t, rec)
	assert.Equal(t, "Начальник участка", updated["position"])
	assert.Equal(t, "Иванов", updated["surname"], "fields left out keep their values")

	stored, err := ts.people.Get(ctx, leader.ID)
	require.NoError(t, err)
	assert.Equal(t, "<w:tbl/>", stored.InstrumentTable)

	req = httptest.NewRequest(http.MethodPost, "/api/licenses",
		strings.NewReader(`{"license_number":"УД-17","license":"УЗК","license_end_date":"2027-04-01"}`))
	req.Header.Set("Authorization", "Bearer secret")
	require.Equal(t, http.StatusCreated, ts.do(req).Code)

	req = httptest.NewRequest(http.MethodPost, "/api/licenses",
		strings.NewReader(`{"license_number":"УД-17","license":"УЗК","license_end_date":"01.04.2027"}`))
	req.Header.Set("Authorization", "Bearer secret")
	assert.Equal(t, http.StatusBadRequest, ts.do(req).Code)

	rec = ts.do(httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode(t, rec)
	employee := got["employee"].(map[string]any)
	assert.Equal(t, "УД-17", employee["license_number"])
	assert.NotContains(t, employee, "instrument_table")
	licenses := got["licenses"].([]any)
	require.Len(t, licenses, 1)
	assert.Equal(t, "УЗК", licenses[0].(map[string]any)["license"])

	assert.Equal(t, http.StatusNotFound, ts.do(httptest.NewRequest(http.MethodGet, "/api/employees/999", nil)).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(httptest.NewRequest(http.MethodGet, "/api/employees/abc", nil)).Code)

	req = httptest.NewRequest(http.MethodPut, path, strings.NewReader(`{"surname":"  "}`))
	req.Header.Set("Authorization", "Bearer secret")
	assert.Equal(t, http.StatusBadRequest, ts.do(req).Code)

	req = httptest.NewRequest(http.MethodPut, "/api/employees/999", strings.NewReader(update))
	req.Header.Set("Authorization", "Bearer secret")
	assert.Equal(t, http.StatusNotFound, ts.do(req).Code)
}

func TestEmployees_OpenWithoutKey(t *testing.T) {
	ts := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodDelete, "/api/employees/1", nil)
	assert.Equal(t, http.StatusNoContent, ts.do(req).Code)
}

func TestDocuments_ListDownloadDelete(t *testing.T) {
	ts := newTestServer(t, "")
	rec := ts.postForm(t, "/generate/letter", map[string]string{"company_name": "Ромашка"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	generated := rec.Body.Bytes()

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/documents", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	docs := decode(t, rec)["documents"].([]any)
	require.Len(t, docs, 1)
	assert.Equal(t, "Письмо_Ромашка.docx", docs[0].(map[string]any)["name"])

	path := "/documents/" + url.PathEscape("Письмо_Ромашка.docx")
	rec = ts.do(httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, generated, rec.Body.Bytes())

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/documents/"+url.PathEscape("../letter.docx"), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, http.StatusNoContent, ts.do(httptest.NewRequest(http.MethodDelete, path, nil)).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(httptest.NewRequest(http.MethodDelete, path, nil)).Code)
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
