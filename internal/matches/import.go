package matches

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/xuri/excelize/v2"

	"github.com/NetoRibeiro/ovpfh-v2/internal/catalog"
	"github.com/NetoRibeiro/ovpfh-v2/internal/matchurl"
	"github.com/NetoRibeiro/ovpfh-v2/internal/textnorm"
)

// importer turns spreadsheet rows into matches. Free-text team and tournament names
// are mapped onto catalog ids when possible.
type importer struct {
	loc  *time.Location
	snap catalog.Snapshot
	idx  *catalog.Index
}

func newImporter(snap catalog.Snapshot, loc *time.Location) importer {
	if loc == nil {
		loc = time.Local
	}
	return importer{loc: loc, snap: snap, idx: catalog.NewIndex(snap)}
}

// rowError is a row that could not be turned into a match. Line is 1-based and
// counts the header.
type rowError struct {
	Line int
	Err  error
}

func (e rowError) Error() string { return fmt.Sprintf("row %d: %v", e.Line, e.Err) }

// parseImport reads a CSV or XLSX upload.
func (im importer) parseImport(fh *multipart.FileHeader) ([]catalog.Match, []rowError, error) {
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	file, err := fh.Open()
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	switch ext {
	case ".csv":
		return im.parseCSV(file)
	case ".xlsx":
		b, err := io.ReadAll(io.LimitReader(file, 10<<20))
		if err != nil {
			return nil, nil, err
		}
		return im.parseXLSX(b)
	default:
		return nil, nil, fmt.Errorf("unsupported file type: %s", ext)
	}
}

func (im importer) parseCSV(r io.Reader) ([]catalog.Match, []rowError, error) {
	br := bufio.NewReader(r)
	// peek the header line to guess the delimiter
	line, _ := br.ReadString('\n')
	reader := csv.NewReader(io.MultiReader(strings.NewReader(line), br))
	reader.FieldsPerRecord = -1
	if strings.Count(line, ";") > strings.Count(line, ",") {
		reader.Comma = ';'
	}
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, errors.New("empty csv")
	}
	ms, errs := im.rows(rows)
	return ms, errs, nil
}

func (im importer) parseXLSX(b []byte) ([]catalog.Match, []rowError, error) {
	f, err := excelize.OpenReader(bytes.NewReader(b))
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, nil, errors.New("no sheet")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, errors.New("empty sheet")
	}
	ms, errs := im.rows(rows)
	return ms, errs, nil
}

func (im importer) rows(rows [][]string) ([]catalog.Match, []rowError) {
	headers := normHeaders(rows[0])
	var (
		out  []catalog.Match
		errs []rowError
	)
	for i := 1; i < len(rows); i++ {
		if strings.TrimSpace(strings.Join(rows[i], "")) == "" {
			continue
		}
		m, err := im.rowToMatch(headers, rows[i])
		if err != nil {
			errs = append(errs, rowError{Line: i + 1, Err: err})
			continue
		}
		out = append(out, m)
	}
	return out, errs
}

// normHeaders folds case and accents, drops punctuation and maps Portuguese and
// English column names onto one key each.
func normHeaders(hdr []string) map[int]string {
	m := make(map[int]string, len(hdr))
	for i, h := range hdr {
		var b strings.Builder
		for _, r := range textnorm.Normalize(strings.TrimSpace(h)) {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(r)
			}
		}
		k := b.String()
		switch k {
		case "campeonato", "torneio", "competicao", "liga", "tournament", "league":
			k = "tournament"
		case "mandante", "casa", "timedacasa", "hometeam", "home":
			k = "hometeam"
		case "visitante", "fora", "timevisitante", "awayteam", "away":
			k = "awayteam"
		case "data", "dia", "date":
			k = "date"
		case "hora", "horario", "time", "kickoff":
			k = "time"
		case "transmissao", "canais", "canal", "ondepassa", "broadcasting", "channels", "tv":
			k = "broadcasting"
		case "placar", "resultado", "score", "result":
			k = "score"
		case "rodada", "fase", "round":
			k = "round"
		case "estadio", "local", "arena", "venue", "stadium":
			k = "venue"
		case "cidade", "city":
			k = "city"
		case "uf", "estado", "state":
			k = "state"
		case "aovivo", "live", "islive":
			k = "live"
		case "situacao", "status":
			k = "status"
		case "link", "url", "matchurl":
			k = "url"
		case "id", "codigo":
			k = "id"
		}
		m[i] = k
	}
	return m
}

func (im importer) rowToMatch(h map[int]string, row []string) (catalog.Match, error) {
	get := func(key string) string {
		for i, k := range h {
			if k == key && i < len(row) {
				return strings.TrimSpace(row[i])
			}
		}
		return ""
	}

	m := catalog.Match{
		ID:           get("id"),
		Tournament:   im.tournamentRef(get("tournament")),
		HomeTeam:     im.teamRef(get("hometeam")),
		AwayTeam:     im.teamRef(get("awayteam")),
		IsLive:       atob(get("live")),
		Broadcasting: splitChannels(get("broadcasting")),
		MatchURL:     get("url"),
		Round:        get("round"),
		Status:       get("status"),
	}
	if m.HomeTeam == "" || m.AwayTeam == "" {
		return catalog.Match{}, errors.New("home and away teams are required")
	}
	if m.Tournament == "" {
		return catalog.Match{}, errors.New("tournament is required")
	}

	when, err := parseLocal(get("date"), get("time"), im.loc)
	if err != nil {
		return catalog.Match{}, err
	}
	m.MatchDate = when

	if s := get("score"); s != "" {
		score, err := parseScore(s)
		if err != nil {
			return catalog.Match{}, err
		}
		m.Score = score
	}

	// "Arena, City" splits into venue and city unless a city column is present.
	venue, city := get("venue"), get("city")
	if parts := strings.SplitN(venue, ",", 2); len(parts) == 2 {
		venue = strings.TrimSpace(parts[0])
		if city == "" {
			city = strings.TrimSpace(parts[1])
		}
	}
	if venue != "" || city != "" {
		m.Venue = &catalog.Venue{Name: venue, City: city, State: get("state")}
	}

	if m.ID == "" {
		m.ID = matchurl.Ref{
			Tournament: m.Tournament,
			HomeTeam:   m.HomeTeam,
			AwayTeam:   m.AwayTeam,
			DateSlug:   m.MatchDate.In(im.loc).Format("02-01-2006"),
		}.Key()
	}
	return m, nil
}

// teamRef keeps a known id or slug, then tries a name match, then falls back to a
// slug of the text.
func (im importer) teamRef(s string) string {
	if s == "" {
		return ""
	}
	if t, ok := im.idx.Team(s); ok {
		return t.ID
	}
	n := textnorm.Normalize(s)
	for _, t := range im.snap.Teams {
		if textnorm.Normalize(t.Name) == n {
			return t.ID
		}
	}
	return slug(s)
}

func (im importer) tournamentRef(s string) string {
	if s == "" {
		return ""
	}
	if t, ok := im.idx.Tournament(s); ok {
		return t.ID
	}
	n := textnorm.Normalize(s)
	for _, t := range im.snap.Tournaments {
		if textnorm.Normalize(t.Name) == n || (t.ShortName != "" && textnorm.Normalize(t.ShortName) == n) {
			return t.ID
		}
	}
	return slug(s)
}

// slug keeps only ASCII letters and digits of the folded text: "São Paulo" -> "saopaulo".
func slug(s string) string {
	var b strings.Builder
	for _, r := range textnorm.Normalize(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var (
	dateLayouts = []string{"2006-01-02", "02/01/2006", "02-01-2006", "2/1/2006"}
	timeLayouts = []string{"15:04", "15:04:05", "15h04", "15h"}
)

// parseLocal combines a date and an optional time of day in loc.
func parseLocal(dateRaw, timeRaw string, loc *time.Location) (time.Time, error) {
	if dateRaw == "" {
		return time.Time{}, errors.New("date is required")
	}
	var (
		day time.Time
		ok  bool
	)
	for _, l := range dateLayouts {
		if t, err := time.ParseInLocation(l, dateRaw, loc); err == nil {
			day, ok = t, true
			break
		}
	}
	if !ok {
		return time.Time{}, fmt.Errorf("unrecognized date %q", dateRaw)
	}
	if timeRaw == "" {
		return day, nil
	}
	tr := strings.ToLower(timeRaw)
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, tr); err == nil {
			return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", timeRaw)
}

// parseScore accepts "2-1", "2 x 1" and "2x1".
func parseScore(s string) (*catalog.Score, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	sep := "-"
	if strings.Contains(s, "x") {
		sep = "x"
	}
	parts := strings.SplitN(s, sep, 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("unrecognized score %q", s)
	}
	home, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	away, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || home < 0 || away < 0 {
		return nil, fmt.Errorf("unrecognized score %q", s)
	}
	return &catalog.Score{Home: home, Away: away}, nil
}

// splitChannels splits "Globo, Premiere / CazéTV" into broadcasts in order.
func splitChannels(s string) []catalog.Broadcast {
	out := []catalog.Broadcast{}
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '/' || r == '|' || r == ';' })
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, catalog.Broadcast{Channel: f})
		}
	}
	return out
}

func atob(s string) bool {
	s = textnorm.Normalize(strings.TrimSpace(s))
	return s == "1" || s == "true" || s == "sim" || s == "s" || s == "yes" || s == "y"
}
