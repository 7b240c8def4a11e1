package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/TobiSchelling/electwatch/internal/config"
	"github.com/TobiSchelling/electwatch/internal/database"
	"github.com/TobiSchelling/electwatch/internal/fetch"
	"github.com/TobiSchelling/electwatch/internal/logger"
	"github.com/TobiSchelling/electwatch/internal/normalize"
)

// Registry reads the official candidate registry: a paged candidate list and
// one CV ("hoja de vida") per candidate.
type Registry struct {
	cfg    config.Registry
	client *fetch.Client
	log    logger.Logger
	now    func() time.Time
}

// NewRegistry creates the registry adapter.
func NewRegistry(cfg config.Registry, userAgent string, deps Deps) *Registry {
	deps = deps.withDefaults()
	return &Registry{
		cfg:    cfg,
		client: deps.client(SourceRegistry, cfg.Fetch, userAgent, 2),
		log:    deps.Logger,
		now:    deps.Now,
	}
}

func (r *Registry) Name() Source { return SourceRegistry }

type registryListResponse struct {
	Data        []registryListItem `json:"data"`
	TotalPages  int                `json:"totalPaginas"`
	CurrentPage int                `json:"paginaActual"`
}

type registryListItem struct {
	ID         flexString `json:"idHojaVida"`
	FullName   string     `json:"nombreCompleto"`
	Office     string     `json:"cargo"`
	Party      string     `json:"organizacionPolitica"`
	District   string     `json:"distritoElectoral"`
	NationalID string     `json:"documentoIdentidad"`
	PhotoURL   string     `json:"fotoUrl"`
}

type registryDetailResponse struct {
	Data *registryCV `json:"data"`
}

type registryCV struct {
	BirthDate string `json:"fechaNacimiento"`
	Education []struct {
		Level       string     `json:"nivel"`
		Institution string     `json:"institucion"`
		Degree      string     `json:"grado"`
		Year        flexString `json:"anio"`
	} `json:"formacionAcademica"`
	Experience []struct {
		Organization string     `json:"entidad"`
		Position     string     `json:"cargo"`
		StartYear    flexString `json:"anioInicio"`
		EndYear      flexString `json:"anioFin"`
	} `json:"experienciaLaboral"`
	Trajectory []struct {
		Organization string     `json:"organizacion"`
		Role         string     `json:"cargo"`
		StartYear    flexString `json:"anioInicio"`
		EndYear      flexString `json:"anioFin"`
	} `json:"trayectoriaPartidaria"`
	PenalSentences []registrySentence `json:"sentenciasPenales"`
	CivilSentences []registrySentence `json:"sentenciasCiviles"`
	Assets         *struct {
		Income     flexFloat  `json:"ingresos"`
		RealEstate flexFloat  `json:"inmuebles"`
		Vehicles   flexFloat  `json:"vehiculos"`
		Other      flexFloat  `json:"otros"`
		Currency   string     `json:"moneda"`
		Year       flexString `json:"anio"`
	} `json:"bienesRentas"`
}

type registrySentence struct {
	CaseNumber string `json:"expediente"`
	Court      string `json:"organoJudicial"`
	Offense    string `json:"delito"`
	Ruling     string `json:"fallo"`
	Date       string `json:"fecha"`
	Status     string `json:"estado"`
}

type registryEntry struct {
	item      registryListItem
	cv        *registryCV
	detailURL string
}

// FetchList walks the candidate list pages of the configured process.
func (r *Registry) FetchList(ctx context.Context) ([]Entry, error) {
	if r.cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: registry base_url is empty", ErrNotConfigured)
	}

	var entries []Entry
	for page := 1; r.cfg.MaxPages <= 0 || page <= r.cfg.MaxPages; page++ {
		q := url.Values{}
		q.Set("proceso", r.cfg.Process)
		q.Set("pagina", strconv.Itoa(page))
		q.Set("tamanio", strconv.Itoa(r.cfg.PageSize))
		listURL := strings.TrimRight(r.cfg.BaseURL, "/") + "/candidatos?" + q.Encode()

		var resp registryListResponse
		if err := r.client.GetJSON(ctx, listURL, nil, &resp); err != nil {
			return nil, fmt.Errorf("registry list page %d: %w", page, err)
		}

		for _, item := range resp.Data {
			e := Entry{ID: string(item.ID), Data: &registryEntry{item: item}}
			if item.ID == "" || strings.TrimSpace(item.FullName) == "" {
				e.Err = fmt.Errorf("%w: registry row without id or name on page %d", ErrShape, page)
			}
			entries = append(entries, e)
		}

		r.log.Debug("Fetched registry page",
			logger.Int("page", page),
			logger.Int("items", len(resp.Data)),
			logger.Int("total_pages", resp.TotalPages),
		)

		if len(resp.Data) == 0 || resp.TotalPages == 0 || page >= resp.TotalPages {
			break
		}
	}
	return entries, nil
}

// FetchDetail loads the candidate's CV.
func (r *Registry) FetchDetail(ctx context.Context, e Entry) (Entry, error) {
	re, ok := e.Data.(*registryEntry)
	if !ok {
		return e, fmt.Errorf("%w: registry entry %s", ErrShape, e.ID)
	}
	detailURL := strings.TrimRight(r.cfg.BaseURL, "/") + "/hoja-vida/" + url.PathEscape(e.ID)

	var resp registryDetailResponse
	if err := r.client.GetJSON(ctx, detailURL, nil, &resp); err != nil {
		return e, fmt.Errorf("registry detail %s: %w", e.ID, err)
	}
	re.cv = resp.Data
	re.detailURL = detailURL
	e.URL = detailURL
	return e, nil
}

// Normalize turns a list row and its CV into a RegistryRecord.
func (r *Registry) Normalize(e Entry) ([]Record, error) {
	re, ok := e.Data.(*registryEntry)
	if !ok {
		return nil, fmt.Errorf("%w: registry entry %s", ErrShape, e.ID)
	}
	office, ok := ParseOffice(re.item.Office)
	if !ok {
		return nil, fmt.Errorf("%w: unknown office %q for %s", ErrShape, re.item.Office, re.item.FullName)
	}

	rec := &RegistryRecord{
		ExternalID:   e.ID,
		FullName:     cleanName(re.item.FullName),
		Office:       office,
		PartyName:    strings.TrimSpace(re.item.Party),
		DistrictName: cleanDistrict(re.item.District),
		NationalID:   strings.TrimSpace(re.item.NationalID),
		PhotoURL:     strings.TrimSpace(re.item.PhotoURL),
		SourceURL:    re.detailURL,
		FetchedAt:    r.now(),
	}
	if !office.RequiresDistrict() {
		rec.DistrictName = ""
	}

	if cv := re.cv; cv != nil {
		rec.BirthDate = normalizeDate(cv.BirthDate)
		for _, ed := range cv.Education {
			rec.Education = append(rec.Education, database.Education{
				Level: strings.TrimSpace(ed.Level), Institution: strings.TrimSpace(ed.Institution),
				Degree: strings.TrimSpace(ed.Degree), Year: string(ed.Year),
			})
		}
		for _, ex := range cv.Experience {
			rec.Experience = append(rec.Experience, database.Experience{
				Organization: strings.TrimSpace(ex.Organization), Position: strings.TrimSpace(ex.Position),
				StartYear: string(ex.StartYear), EndYear: string(ex.EndYear),
			})
		}
		for _, tr := range cv.Trajectory {
			rec.Trajectory = append(rec.Trajectory, database.Trajectory{
				Organization: strings.TrimSpace(tr.Organization), Role: strings.TrimSpace(tr.Role),
				StartYear: string(tr.StartYear), EndYear: string(tr.EndYear),
			})
		}
		rec.PenalSentences = convertSentences(cv.PenalSentences)
		rec.CivilSentences = convertSentences(cv.CivilSentences)
		if a := cv.Assets; a != nil {
			rec.Assets = &database.Assets{
				Income: float64(a.Income), RealEstate: float64(a.RealEstate),
				Vehicles: float64(a.Vehicles), Other: float64(a.Other),
				Currency: strings.TrimSpace(a.Currency), Year: string(a.Year),
			}
		}
	}
	return []Record{rec}, nil
}

func convertSentences(in []registrySentence) []database.Sentence {
	var out []database.Sentence
	for _, s := range in {
		if strings.TrimSpace(s.Offense) == "" && strings.TrimSpace(s.CaseNumber) == "" {
			continue
		}
		out = append(out, database.Sentence{
			CaseNumber: strings.TrimSpace(s.CaseNumber),
			Court:      strings.TrimSpace(s.Court),
			Offense:    strings.TrimSpace(s.Offense),
			Ruling:     strings.TrimSpace(s.Ruling),
			Date:       normalizeDate(s.Date),
			Status:     strings.TrimSpace(s.Status),
		})
	}
	return out
}

// ParseOffice maps a registry office label ("SENADOR", "Presidente de la
// República", ...) to an Office.
func ParseOffice(label string) (database.Office, bool) {
	f := normalize.Fold(label)
	switch {
	case f == "":
		return "", false
	case strings.Contains(f, "vicepresident"):
		return database.OfficeVicePresident, true
	case strings.Contains(f, "president"):
		return database.OfficePresident, true
	case strings.Contains(f, "parlamento andino"), strings.Contains(f, "andean"):
		return database.OfficeAndeanParliament, true
	case strings.Contains(f, "senad"), strings.Contains(f, "senator"):
		return database.OfficeSenator, true
	case strings.Contains(f, "diputad"), strings.Contains(f, "deputy"):
		return database.OfficeDeputy, true
	}
	if o := database.Office(f); o.Valid() {
		return o, true
	}
	return "", false
}

// cleanName collapses whitespace and title-cases an all-caps name.
func cleanName(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s != strings.ToUpper(s) {
		return s
	}
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r := []rune(w)
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func cleanDistrict(s string) string {
	return cleanName(strings.TrimSpace(s))
}

// normalizeDate turns "dd/mm/yyyy" into "yyyy-mm-dd"; other inputs are kept.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"02/01/2006", "2006-01-02T15:04:05", "2006-01-02T15:04:05Z07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}
