package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/electwatch/internal/config"
	"github.com/TobiSchelling/electwatch/internal/database"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testDeps() Deps {
	return Deps{
		Sleep:  func(context.Context, time.Duration) error { return nil },
		Now:    func() time.Time { return fixedNow },
		Getenv: func(string) string { return "secret" },
	}
}

func testFetch() config.Fetch {
	return config.Fetch{Enabled: true, Timeout: 5 * time.Second}
}

func serveJSON(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if p := r.URL.Query().Get("pagina"); p != "" {
			key += "?pagina=" + p
		}
		body, ok := routes[key]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const registryPage1 = `{"data": [
	{"idHojaVida": 101, "nombreCompleto": "ANA TORRES", "cargo": "SENADOR", "organizacionPolitica": "Fuerza X", "distritoElectoral": "LIMA", "documentoIdentidad": "12345678"},
	{"idHojaVida": 102, "nombreCompleto": "", "cargo": "DIPUTADO"}
], "totalPaginas": 2, "paginaActual": 1}`

const registryPage2 = `{"data": [
	{"idHojaVida": "103", "nombreCompleto": "Luis Paz Rojas", "cargo": "PRESIDENTE DE LA REPÚBLICA", "organizacionPolitica": "Partido Y", "distritoElectoral": "PERUANOS RESIDENTES EN EL EXTRANJERO"}
], "totalPaginas": 2, "paginaActual": 2}`

const registryCV101 = `{"data": {
	"fechaNacimiento": "15/04/1975",
	"formacionAcademica": [{"nivel": "Universitaria", "institucion": "PUCP", "grado": "Abogada", "anio": 1998}],
	"experienciaLaboral": [{"entidad": "Estudio Torres", "cargo": "Socia", "anioInicio": "2000", "anioFin": null}],
	"trayectoriaPartidaria": [{"organizacion": "Fuerza X", "cargo": "Secretaria", "anioInicio": 2015}],
	"sentenciasPenales": [{"expediente": "123-2019", "delito": "Colusión", "fallo": "4 años", "fecha": "01/02/2020"}],
	"sentenciasCiviles": [],
	"bienesRentas": {"ingresos": "120,000.50", "inmuebles": 350000, "vehiculos": 0, "otros": 1000, "moneda": "PEN", "anio": 2025}
}}`

func newTestRegistry(t *testing.T, routes map[string]string) *Registry {
	srv := serveJSON(t, routes)
	return NewRegistry(config.Registry{
		Fetch:    testFetch(),
		BaseURL:  srv.URL,
		Process:  "EG2026",
		PageSize: 2,
		MaxPages: 10,
	}, "test", testDeps())
}

func TestRegistryFetchListPages(t *testing.T) {
	r := newTestRegistry(t, map[string]string{
		"/candidatos?pagina=1": registryPage1,
		"/candidatos?pagina=2": registryPage2,
	})

	entries, err := r.FetchList(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "101", entries[0].ID)
	assert.NoError(t, entries[0].Err)
	assert.ErrorIs(t, entries[1].Err, ErrShape)
	assert.Equal(t, "103", entries[2].ID)
}

func TestRegistryDetailAndNormalize(t *testing.T) {
	r := newTestRegistry(t, map[string]string{
		"/candidatos?pagina=1": registryPage1,
		"/candidatos?pagina=2": registryPage2,
		"/hoja-vida/101":       registryCV101,
	})
	entries, err := r.FetchList(context.Background())
	require.NoError(t, err)

	e, err := r.FetchDetail(context.Background(), entries[0])
	require.NoError(t, err)
	records, err := r.Normalize(e)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec, ok := records[0].(*RegistryRecord)
	require.True(t, ok)
	assert.Equal(t, "Ana Torres", rec.FullName)
	assert.Equal(t, database.OfficeSenator, rec.Office)
	assert.Equal(t, "Fuerza X", rec.PartyName)
	assert.Equal(t, "Lima", rec.DistrictName)
	assert.Equal(t, "1975-04-15", rec.BirthDate)
	require.Len(t, rec.Education, 1)
	assert.Equal(t, "1998", rec.Education[0].Year)
	require.Len(t, rec.PenalSentences, 1)
	assert.Equal(t, "Colusión", rec.PenalSentences[0].Offense)
	assert.Empty(t, rec.CivilSentences)
	require.NotNil(t, rec.Assets)
	assert.InDelta(t, 120000.50, rec.Assets.Income, 0.001)
	assert.Equal(t, fixedNow, rec.FetchedAt)
}

func TestRegistryDropsDistrictForNationalOffices(t *testing.T) {
	r := newTestRegistry(t, map[string]string{
		"/candidatos?pagina=1": registryPage1,
		"/candidatos?pagina=2": registryPage2,
	})
	entries, _ := r.FetchList(context.Background())
	records, err := r.Normalize(entries[2])
	require.NoError(t, err)
	rec := records[0].(*RegistryRecord)
	assert.Equal(t, database.OfficePresident, rec.Office)
	assert.Empty(t, rec.DistrictName)
}

func TestRegistryDetailNotFound(t *testing.T) {
	r := newTestRegistry(t, map[string]string{
		"/candidatos?pagina=1": registryPage1,
		"/candidatos?pagina=2": registryPage2,
	})
	entries, err := r.FetchList(context.Background())
	require.NoError(t, err)
	_, err = r.FetchDetail(context.Background(), entries[0])
	assert.Error(t, err)
}

func TestParseOffice(t *testing.T) {
	tests := map[string]database.Office{
		"PRESIDENTE DE LA REPÚBLICA":              database.OfficePresident,
		"PRIMER VICEPRESIDENTE":                   database.OfficeVicePresident,
		"Segundo Vicepresidente de la República":  database.OfficeVicePresident,
		"SENADOR":                                 database.OfficeSenator,
		"DIPUTADO":                                database.OfficeDeputy,
		"REPRESENTANTE ANTE EL PARLAMENTO ANDINO": database.OfficeAndeanParliament,
		"andean-parliament":                       database.OfficeAndeanParliament,
	}
	for label, want := range tests {
		got, ok := ParseOffice(label)
		assert.True(t, ok, label)
		assert.Equal(t, want, got, label)
	}
	_, ok := ParseOffice("ALCALDE")
	assert.False(t, ok)
}

func TestCleanName(t *testing.T) {
	assert.Equal(t, "Ana Torres", cleanName("  ANA   TORRES "))
	assert.Equal(t, "José Ñique", cleanName("JOSÉ ÑIQUE"))
	assert.Equal(t, "Luis de la Cruz", cleanName("Luis de la Cruz"))
}
