package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/sfasm/internal/agent"
	"github.com/alejandrodnm/sfasm/internal/application/engine/market"
	"github.com/alejandrodnm/sfasm/internal/dividend"
	"github.com/alejandrodnm/sfasm/internal/specialist"
	"github.com/alejandrodnm/sfasm/internal/world"
)

// Config es la configuración completa de una corrida del mercado.
type Config struct {
	Market     MarketConfig     `yaml:"market"`
	World      WorldConfig      `yaml:"world"`
	Dividend   DividendConfig   `yaml:"dividend"`
	Specialist SpecialistConfig `yaml:"specialist"`
	Agent      AgentConfig      `yaml:"agent"`
	Account    AccountConfig    `yaml:"account"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
}

// MarketConfig controla el tamaño y la duración de la simulación.
type MarketConfig struct {
	NumAgents     int    `yaml:"num_agents"`
	Warmup        int    `yaml:"warmup"` // negativo = sin warmup
	Periods       int    `yaml:"periods"`
	Seed          uint64 `yaml:"seed"`
	Workers       int    `yaml:"workers"`        // 0 = NumCPU
	FlushEvery    int    `yaml:"flush_every"`    // períodos por batch a storage
	SnapshotEvery int    `yaml:"snapshot_every"` // 0 = sólo al final
	ShowEvery     int    `yaml:"show_every"`     // línea de progreso en consola, 0 = nunca
}

// WorldConfig contiene los parámetros del mundo. La media de dividendos
// que usan los bits d/md sale de dividend.baseline.
type WorldConfig struct {
	Intrate        float64 `yaml:"intrate"`
	ExponentialMAs bool    `yaml:"exponential_mas"`
}

// DividendConfig contiene los parámetros del proceso de dividendos.
type DividendConfig struct {
	Baseline  float64 `yaml:"baseline"`
	Min       float64 `yaml:"min"`
	Max       float64 `yaml:"max"`
	Amplitude float64 `yaml:"amplitude"`
	Period    float64 `yaml:"period"`
}

// SpecialistConfig contiene los parámetros del market maker.
type SpecialistConfig struct {
	Type          string  `yaml:"type"` // re | slope | eta
	MinPrice      float64 `yaml:"min_price"`
	MaxPrice      float64 `yaml:"max_price"`
	MaxIterations int     `yaml:"max_iterations"`
	MinExcess     float64 `yaml:"min_excess"`
	Eta           float64 `yaml:"eta"`
	EtaMin        float64 `yaml:"eta_min"`
	EtaMax        float64 `yaml:"eta_max"`
	REA           float64 `yaml:"rea"`
	REB           float64 `yaml:"reb"`
	Taup          float64 `yaml:"taup"`
}

// AgentConfig contiene los parámetros de pronóstico y del GA, compartidos
// por todos los agentes.
type AgentConfig struct {
	NumRules    int      `yaml:"num_rules"`
	CondBits    []string `yaml:"cond_bits"`
	MinCount    int      `yaml:"min_count"`
	GAFrequency float64  `yaml:"ga_frequency"`
	FirstGATime int      `yaml:"first_ga_time"`
	LongTime    int      `yaml:"long_time"`
	BitProb     float64  `yaml:"bit_prob"`
	Individual  bool     `yaml:"individual"`
	Tauv        float64  `yaml:"tauv"`
	Lambda      float64  `yaml:"lambda"`
	MaxBid      float64  `yaml:"max_bid"`
	InitVar     float64  `yaml:"init_var"`
	MaxDev      float64  `yaml:"max_dev"`
	BitCost     float64  `yaml:"bit_cost"`
	AMin        float64  `yaml:"a_min"`
	AMax        float64  `yaml:"a_max"`
	BMin        float64  `yaml:"b_min"`
	BMax        float64  `yaml:"b_max"`
	CMin        float64  `yaml:"c_min"`
	CMax        float64  `yaml:"c_max"`
	Subrange    float64  `yaml:"subrange"`
	PoolFrac    float64  `yaml:"pool_frac"`
	NewFrac     float64  `yaml:"new_frac"`
	PCrossover  float64  `yaml:"p_crossover"`
	PLinear     float64  `yaml:"p_linear"`
	PRandom     float64  `yaml:"p_random"`
	PMutation   float64  `yaml:"p_mutation"`
	PLong       float64  `yaml:"p_long"`
	PShort      float64  `yaml:"p_short"`
	NHood       float64  `yaml:"nhood"`
	GenFrac     float64  `yaml:"gen_frac"`
}

// AccountConfig es el balance inicial de cada agente y sus límites.
type AccountConfig struct {
	InitialCash    float64 `yaml:"initial_cash"`
	InitialHolding float64 `yaml:"initial_holding"`
	MinCash        float64 `yaml:"min_cash"`
	MinHolding     float64 `yaml:"min_holding"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Default devuelve la configuración clásica del mercado. Load parte de
// estos valores, así que el YAML sólo necesita las keys que cambian.
func Default() Config {
	ap := agent.DefaultParams()
	acct := agent.DefaultAccount()
	sp := specialist.DefaultParams()
	return Config{
		Market: MarketConfig{
			NumAgents:  25,
			Warmup:     market.DefaultWarmupPeriods,
			Periods:    10000,
			Seed:       1,
			FlushEvery: market.DefaultFlushEvery,
			ShowEvery:  1000,
		},
		World: WorldConfig{Intrate: 0.1},
		Dividend: DividendConfig{
			Baseline:  10,
			Min:       0.00005,
			Max:       100,
			Amplitude: 0.14178,
			Period:    19.9,
		},
		Specialist: SpecialistConfig{
			Type:          sp.Type.String(),
			MinPrice:      sp.MinPrice,
			MaxPrice:      sp.MaxPrice,
			MaxIterations: sp.MaxIterations,
			MinExcess:     sp.MinExcess,
			Eta:           sp.Eta,
			EtaMin:        sp.EtaMin,
			EtaMax:        sp.EtaMax,
			REA:           sp.REA,
			REB:           sp.REB,
			Taup:          sp.Taup,
		},
		Agent: AgentConfig{
			NumRules:    ap.NumRules,
			CondBits:    ap.CondBits,
			MinCount:    ap.MinCount,
			GAFrequency: ap.GAFrequency,
			FirstGATime: ap.FirstGATime,
			LongTime:    ap.LongTime,
			BitProb:     ap.BitProb,
			Individual:  ap.Individual,
			Tauv:        ap.Tauv,
			Lambda:      ap.Lambda,
			MaxBid:      ap.MaxBid,
			InitVar:     ap.InitVar,
			MaxDev:      ap.MaxDev,
			BitCost:     ap.BitCost,
			AMin:        ap.AMin,
			AMax:        ap.AMax,
			BMin:        ap.BMin,
			BMax:        ap.BMax,
			CMin:        ap.CMin,
			CMax:        ap.CMax,
			Subrange:    ap.Subrange,
			PoolFrac:    ap.PoolFrac,
			NewFrac:     ap.NewFrac,
			PCrossover:  ap.PCrossover,
			PLinear:     ap.PLinear,
			PRandom:     ap.PRandom,
			PMutation:   ap.PMutation,
			PLong:       ap.PLong,
			PShort:      ap.PShort,
			NHood:       ap.NHood,
			GenFrac:     ap.GenFrac,
		},
		Account: AccountConfig{
			InitialCash:    acct.InitialCash,
			InitialHolding: acct.InitialHolding,
			MinCash:        acct.MinCash,
			MinHolding:     acct.MinHolding,
		},
	}
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	setDefaults(&cfg)

	return &cfg, nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("ASM_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("ASM_SEED %q: %w", v, err)
		}
		cfg.Market.Seed = seed
	}
	if v := os.Getenv("ASM_PERIODS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ASM_PERIODS %q: %w", v, err)
		}
		cfg.Market.Periods = n
	}
	if v := os.Getenv("ASM_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	return nil
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Market.FlushEvery <= 0 {
		cfg.Market.FlushEvery = market.DefaultFlushEvery
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "asm.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// Validate corrige los valores que se pueden arreglar y devuelve un aviso
// por cada corrección. Los errores que no tienen arreglo (bitcost, bits
// desconocidos) los detecta market.New.
func (c *Config) Validate() []string {
	var warnings []string
	warn := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	if _, err := specialist.ParseType(c.Specialist.Type); err != nil {
		warn("specialist.type %q unknown, using slope", c.Specialist.Type)
		c.Specialist.Type = specialist.Slope.String()
	}
	if c.Specialist.MaxPrice <= c.Specialist.MinPrice {
		def := specialist.DefaultParams()
		warn("specialist price range [%v,%v] empty, using [%v,%v]",
			c.Specialist.MinPrice, c.Specialist.MaxPrice, def.MinPrice, def.MaxPrice)
		c.Specialist.MinPrice, c.Specialist.MaxPrice = def.MinPrice, def.MaxPrice
	}
	if c.Specialist.EtaMin > c.Specialist.EtaMax {
		warn("specialist eta_min %v above eta_max %v, swapping", c.Specialist.EtaMin, c.Specialist.EtaMax)
		c.Specialist.EtaMin, c.Specialist.EtaMax = c.Specialist.EtaMax, c.Specialist.EtaMin
	}
	if c.Market.Periods <= 0 {
		warn("market.periods %d not positive, using %d", c.Market.Periods, Default().Market.Periods)
		c.Market.Periods = Default().Market.Periods
	}
	if c.Market.Workers < 0 {
		warn("market.workers %d negative, using NumCPU", c.Market.Workers)
		c.Market.Workers = 0
	}
	if c.Market.SnapshotEvery < 0 {
		warn("market.snapshot_every %d negative, saving snapshots only at the end", c.Market.SnapshotEvery)
		c.Market.SnapshotEvery = 0
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		warn("log.format %q unknown, using text", c.Log.Format)
		c.Log.Format = "text"
	}
	return warnings
}

// MarketConfig convierte la configuración al formato del motor.
func (c *Config) MarketConfig() market.Config {
	// Validate ya corrigió el tipo; un error acá deja Slope.
	typ, _ := specialist.ParseType(c.Specialist.Type)

	warmup := c.Market.Warmup
	if warmup < 0 {
		warmup = 0
	}

	a := c.Agent
	condBits := make([]string, len(a.CondBits))
	copy(condBits, a.CondBits)

	return market.Config{
		NumAgents:     c.Market.NumAgents,
		WarmupPeriods: warmup,
		Periods:       c.Market.Periods,
		Seed:          c.Market.Seed,
		Workers:       c.Market.Workers,
		FlushEvery:    c.Market.FlushEvery,
		SnapshotEvery: c.Market.SnapshotEvery,
		World: world.Params{
			Intrate:        c.World.Intrate,
			Baseline:       c.Dividend.Baseline,
			ExponentialMAs: c.World.ExponentialMAs,
		},
		Dividend: dividend.Params{
			Baseline:  c.Dividend.Baseline,
			Min:       c.Dividend.Min,
			Max:       c.Dividend.Max,
			Amplitude: c.Dividend.Amplitude,
			Period:    c.Dividend.Period,
		},
		Specialist: specialist.Params{
			Type:          typ,
			MinPrice:      c.Specialist.MinPrice,
			MaxPrice:      c.Specialist.MaxPrice,
			MaxIterations: c.Specialist.MaxIterations,
			MinExcess:     c.Specialist.MinExcess,
			Eta:           c.Specialist.Eta,
			EtaMin:        c.Specialist.EtaMin,
			EtaMax:        c.Specialist.EtaMax,
			REA:           c.Specialist.REA,
			REB:           c.Specialist.REB,
			Taup:          c.Specialist.Taup,
		},
		Agent: agent.Params{
			NumRules:    a.NumRules,
			CondBits:    condBits,
			MinCount:    a.MinCount,
			GAFrequency: a.GAFrequency,
			FirstGATime: a.FirstGATime,
			LongTime:    a.LongTime,
			BitProb:     a.BitProb,
			Individual:  a.Individual,
			Tauv:        a.Tauv,
			Lambda:      a.Lambda,
			MaxBid:      a.MaxBid,
			InitVar:     a.InitVar,
			MaxDev:      a.MaxDev,
			BitCost:     a.BitCost,
			AMin:        a.AMin,
			AMax:        a.AMax,
			BMin:        a.BMin,
			BMax:        a.BMax,
			CMin:        a.CMin,
			CMax:        a.CMax,
			Subrange:    a.Subrange,
			PoolFrac:    a.PoolFrac,
			NewFrac:     a.NewFrac,
			PCrossover:  a.PCrossover,
			PLinear:     a.PLinear,
			PRandom:     a.PRandom,
			PMutation:   a.PMutation,
			PLong:       a.PLong,
			PShort:      a.PShort,
			NHood:       a.NHood,
			GenFrac:     a.GenFrac,
		},
		Account: agent.Account{
			InitialCash:    c.Account.InitialCash,
			InitialHolding: c.Account.InitialHolding,
			MinCash:        c.Account.MinCash,
			MinHolding:     c.Account.MinHolding,
			Intrate:        c.World.Intrate,
		},
	}
}
