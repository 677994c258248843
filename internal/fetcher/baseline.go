package fetcher

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/gymdex/gymdex-cli/internal/model"
)

// baselineRow is the wire shape of a facility row in the registry's JSON
// export. Column names follow the public dataset schema.
type baselineRow struct {
	ManagementNumber string `json:"mgtNo"`
	Name             string `json:"bplcNm"`
	RoadAddress      string `json:"rdnWhlAddr"`
	LotAddress       string `json:"siteWhlAddr"`
	Phone            string `json:"siteTel"`
	BusinessStatus   string `json:"trdStateNm"`
	SiteArea         string `json:"siteArea"`
	ServiceType      string `json:"uptaeNm"`
}

// columnIndex maps a tabular export's header row to column positions.
// Matching is by substring so minor header revisions keep working.
type columnIndex struct {
	mgmtNo, name, roadAddr, lotAddr, phone, status, area, service int
}

var headerAliases = map[string][]string{
	"mgmtNo":   {"관리번호", "mgtno", "management"},
	"name":     {"사업장명", "bplcnm", "business name"},
	"roadAddr": {"도로명전체주소", "rdnwhladdr", "road address"},
	"lotAddr":  {"소재지전체주소", "sitewhladdr", "lot address"},
	"phone":    {"소재지전화", "sitetel", "phone"},
	"status":   {"영업상태명", "trdstatenm", "status"},
	"area":     {"소재지면적", "sitearea", "area"},
	"service":  {"업태구분명", "uptaenm", "service"},
}

func indexHeader(header []string) columnIndex {
	idx := columnIndex{mgmtNo: -1, name: -1, roadAddr: -1, lotAddr: -1, phone: -1, status: -1, area: -1, service: -1}
	find := func(key string) int {
		for i, col := range header {
			lc := strings.ToLower(strings.TrimSpace(col))
			for _, alias := range headerAliases[key] {
				if strings.Contains(lc, alias) {
					return i
				}
			}
		}
		return -1
	}
	idx.mgmtNo = find("mgmtNo")
	idx.name = find("name")
	idx.roadAddr = find("roadAddr")
	idx.lotAddr = find("lotAddr")
	idx.phone = find("phone")
	idx.status = find("status")
	idx.area = find("area")
	idx.service = find("service")
	return idx
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func rowToBaseline(row []string, idx columnIndex) model.BaselineRecord {
	rec := model.BaselineRecord{
		ManagementNumber: cell(row, idx.mgmtNo),
		Name:             cell(row, idx.name),
		Address:          cell(row, idx.roadAddr),
		Phone:            cell(row, idx.phone),
		BusinessStatus:   cell(row, idx.status),
		SiteArea:         cell(row, idx.area),
		Confidence:       1.0,
		Source:           model.SourceBaseline,
	}
	if rec.Address == "" {
		rec.Address = cell(row, idx.lotAddr)
	}
	rec.ID = rec.ManagementNumber
	return rec
}

// ParseBaselineJSON decodes a registry JSON export. The decoder streams
// array elements so large national dumps do not need to fit in memory at
// once beyond the result slice.
func ParseBaselineJSON(ctx context.Context, r io.Reader) ([]model.BaselineRecord, error) {
	decoder := json.NewDecoder(r)

	tok, err := decoder.Token()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, eris.Wrap(err, "baseline json: read opening token")
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '[' {
		return nil, eris.Errorf("baseline json: expected '[', got %v", tok)
	}

	var records []model.BaselineRecord
	for decoder.More() {
		if ctx.Err() != nil {
			return records, eris.Wrap(ctx.Err(), "baseline json: context cancelled")
		}

		var row baselineRow
		if err := decoder.Decode(&row); err != nil {
			return records, eris.Wrap(err, "baseline json: decode element")
		}

		addr := strings.TrimSpace(row.RoadAddress)
		if addr == "" {
			addr = strings.TrimSpace(row.LotAddress)
		}
		records = append(records, model.BaselineRecord{
			ID:               strings.TrimSpace(row.ManagementNumber),
			ManagementNumber: strings.TrimSpace(row.ManagementNumber),
			Name:             strings.TrimSpace(row.Name),
			Address:          addr,
			Phone:            strings.TrimSpace(row.Phone),
			BusinessStatus:   strings.TrimSpace(row.BusinessStatus),
			SiteArea:         strings.TrimSpace(row.SiteArea),
			Confidence:       1.0,
			Source:           model.SourceBaseline,
		})
	}

	if _, err := decoder.Token(); err != nil && err != io.EOF {
		return records, eris.Wrap(err, "baseline json: read closing token")
	}

	return records, nil
}

// CSVOptions configures the baseline CSV parser.
type CSVOptions struct {
	Delimiter  rune // default ','
	Comment    rune // comment character (0 = none)
	LazyQuotes bool
}

// ParseBaselineCSV reads a registry CSV export. The first row is treated
// as the header and drives column mapping.
func ParseBaselineCSV(ctx context.Context, r io.Reader, opts CSVOptions) ([]model.BaselineRecord, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	if opts.Comment != 0 {
		reader.Comment = opts.Comment
	}
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1 // allow variable fields

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "baseline csv: read header")
	}
	idx := indexHeader(header)
	if idx.name < 0 {
		return nil, eris.New("baseline csv: no name column in header")
	}

	var records []model.BaselineRecord
	for {
		if ctx.Err() != nil {
			return records, eris.Wrap(ctx.Err(), "baseline csv: context cancelled")
		}

		row, err := reader.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, eris.Wrap(err, "baseline csv: read row")
		}

		rec := rowToBaseline(row, idx)
		if rec.Name == "" {
			continue
		}
		records = append(records, rec)
	}
}

// XLSXOptions configures the baseline XLSX parser.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// ParseBaselineXLSX reads a registry XLSX export from disk. The first row
// of the selected sheet is treated as the header.
func ParseBaselineXLSX(path string, opts XLSXOptions) ([]model.BaselineRecord, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "baseline xlsx: open file")
	}

	sheet, err := pickSheet(f, opts)
	if err != nil {
		return nil, err
	}

	var (
		idx     columnIndex
		records []model.BaselineRecord
	)
	for i, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, c := range row.Cells {
			cells[j] = c.String()
		}

		if i == 0 {
			idx = indexHeader(cells)
			if idx.name < 0 {
				return nil, eris.New("baseline xlsx: no name column in header")
			}
			continue
		}

		rec := rowToBaseline(cells, idx)
		if rec.Name == "" {
			continue
		}
		records = append(records, rec)
	}

	zap.L().Debug("baseline xlsx: parsed", zap.String("path", path), zap.Int("records", len(records)))
	return records, nil
}

func pickSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("baseline xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("baseline xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}
