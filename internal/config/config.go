package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrInvalid marks every configuration failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds every parameter of a run.
type Config struct {
	Solver       Solver           `toml:"solver"`
	Space        Space            `toml:"space"`
	Grid         Grid             `toml:"grid"`
	Ring         Ring             `toml:"ring"`
	Particle     Particle         `toml:"particle"`
	Stokes       Stokes           `toml:"stokes"`
	Invasion     Invasion         `toml:"invasion"`
	Invagination InvaginationConf `toml:"invagination"`
	Server       Server           `toml:"server"`
}

// Solver selects the system, its boundary regime and the integrator.
type Solver struct {
	System      System      `toml:"system"`
	Boundary    Boundary    `toml:"boundary"`
	UseGrid     bool        `toml:"use_grid"` // periodic only: grid accelerated pass
	Integration Integration `toml:"integration"`
	Dt          float64     `toml:"dt"`
	Seed        int64       `toml:"seed"`    // -1: time derived
	Workers     int         `toml:"workers"` // 0: runtime.NumCPU()
}

// Space is the rectangular domain centered at (CenterX, CenterY).
type Space struct {
	Height  float64 `toml:"height"`
	Length  float64 `toml:"length"`
	CenterX float64 `toml:"center_x"`
	CenterY float64 `toml:"center_y"`
}

// Grid is the neighbor search partition.
type Grid struct {
	Cols       int `toml:"cols"`
	Rows       int `toml:"rows"`
	UpdateFreq int `toml:"update_freq"`
}

// Ring holds the ring dynamics.
type Ring struct {
	NumRings     int `toml:"num_rings"` // initial population
	NumParticles int `toml:"num_particles"`

	SpringK float64 `toml:"spring_k"`
	SpringR float64 `toml:"spring_r"`

	AreaPotential AreaPotential `toml:"area_potential"`
	KArea         float64       `toml:"k_area"`
	KFormat       float64       `toml:"k_format"`
	P0            float64       `toml:"p0"`    // set P0 or Area0, the other is derived
	Area0         float64       `toml:"area0"`
	P0Format      float64       `toml:"p0_format"`

	Mobility  float64 `toml:"mobility"`
	RelaxTime float64 `toml:"relax_time"`
	Vo        float64 `toml:"vo"`
	TransDiff float64 `toml:"trans_diff"`
	RotDiff   float64 `toml:"rot_diff"`

	Diameter  float64   `toml:"diameter"`
	MaxDist   float64   `toml:"max_dist"`
	RepForce  float64   `toml:"rep_force"`
	AdhForce  float64   `toml:"adh_force"`
	KInvasion KInvasion `toml:"k_invasion"`
}

// Particle holds the self-propelled particle dynamics.
type Particle struct {
	Num                int     `toml:"num"`
	Mobility           float64 `toml:"mobility"`
	RelaxationTime     float64 `toml:"relaxation_time"`
	Vo                 float64 `toml:"vo"`
	Nabla              float64 `toml:"nabla"`
	MaxAttractiveForce float64 `toml:"max_attractive_force"`
	MaxRepulsiveForce  float64 `toml:"max_repulsive_force"`
	REq                float64 `toml:"r_eq"`
	MaxR               float64 `toml:"max_r"`
}

// Stokes holds the open flow regime.
type Stokes struct {
	ObstacleR    float64 `toml:"obstacle_r"`
	ObstacleX    float64 `toml:"obstacle_x"`
	ObstacleY    float64 `toml:"obstacle_y"`
	CreateLength float64 `toml:"create_length"`
	RemoveLength float64 `toml:"remove_length"`
	FluxForce    float64 `toml:"flux_force"`
	ObsForce     float64 `toml:"obs_force"`
	NumMaxRings  int     `toml:"num_max_rings"`
}

// Invasion configures the overlap detector.
type Invasion struct {
	Disable            bool `toml:"disable"`
	Cols               int  `toml:"cols"`
	Rows               int  `toml:"rows"`
	UpdateFreq         int  `toml:"update_freq"`
	StepsAfterResolved int  `toml:"steps_after_resolved"`
}

// InvaginationConf configures the per-spring stiffness of the affected
// rings. Height and Length describe the rectangular ring layout in vertices.
type InvaginationConf struct {
	UpperK      float64 `toml:"upper_k"`
	BottomK     float64 `toml:"bottom_k"`
	NumAffected int     `toml:"num_affected"`
	Height      int     `toml:"height"`
	Length      int     `toml:"length"`
}

// Server configures the streaming service.
type Server struct {
	Addr             string `toml:"addr"`
	TickRate         int    `toml:"tick_rate"`
	BroadcastEvery   int    `toml:"broadcast_every"`
	StatsEvery       int    `toml:"stats_every"`
	DBPath           string `toml:"db_path"`
	OperatorUser     string `toml:"operator_user"`
	OperatorPassword string `toml:"operator_password"` // empty: reuse the stored hash, if any
}

// Default returns a complete working configuration.
func Default() *Config {
	return &Config{
		Solver: Solver{
			System:      SystemRing,
			Boundary:    Periodic,
			UseGrid:     true,
			Integration: Euler,
			Dt:          0.01,
			Seed:        -1,
		},
		Space: Space{Height: 40, Length: 40},
		Grid:  Grid{Cols: 30, Rows: 30, UpdateFreq: 1},
		Ring: Ring{
			NumRings:      16,
			NumParticles:  10,
			SpringK:       8,
			SpringR:       0.7,
			AreaPotential: TargetArea,
			KArea:         2,
			P0:            3.8,
			Mobility:      1,
			RelaxTime:     1,
			Vo:            1,
			TransDiff:     0,
			RotDiff:       0.5,
			Diameter:      1,
			MaxDist:       1.166,
			RepForce:      12,
			AdhForce:      0.75,
			KInvasion:     KInvasion{Auto: true},
		},
		Particle: Particle{
			Num:                200,
			Mobility:           1,
			RelaxationTime:     1,
			Vo:                 1,
			Nabla:              0.5,
			MaxAttractiveForce: 0.75,
			MaxRepulsiveForce:  30,
			REq:                1,
			MaxR:               1.2,
		},
		Stokes: Stokes{
			ObstacleR:    5,
			CreateLength: 4,
			RemoveLength: 4,
			FluxForce:    1,
			ObsForce:     10,
			NumMaxRings:  200,
		},
		Invasion: Invasion{Cols: 10, Rows: 10, UpdateFreq: 1, StepsAfterResolved: 2},
		Server: Server{
			Addr:           ":8080",
			TickRate:       60,
			BroadcastEvery: 2,
			StatsEvery:     10,
			DBPath:         "ringsim.db",
			OperatorUser:   "operator",
		},
	}
}

// Load decodes the TOML file at path over the defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(string(data))
}

// Parse is Load for in-memory TOML.
func Parse(data string) (*Config, error) {
	conf := Default()
	md, err := toml.Decode(data, conf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return finish(conf, md)
}

func finish(conf *Config, md toml.MetaData) (*Config, error) {
	if keys := md.Undecoded(); len(keys) > 0 {
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown keys %s", ErrInvalid, strings.Join(names, ", "))
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)
}

// Validate checks consistency and fills the derived ring quantities.
func (c *Config) Validate() error {
	s := c.Solver
	if s.Dt <= 0 {
		return invalid("dt must be positive, got %g", s.Dt)
	}
	if s.Integration != Euler {
		return invalid("integration %q is not implemented", s.Integration)
	}
	if s.Workers < 0 {
		return invalid("workers must be >= 0")
	}
	if c.Space.Height <= 0 || c.Space.Length <= 0 {
		return invalid("space must have positive height and length")
	}
	if c.Grid.Cols < 3 || c.Grid.Rows < 3 {
		return invalid("grid needs at least 3x3 cells, got %dx%d", c.Grid.Cols, c.Grid.Rows)
	}
	if c.Grid.UpdateFreq < 1 {
		return invalid("grid update_freq must be >= 1")
	}
	if sv := c.Server; sv.TickRate < 1 || sv.BroadcastEvery < 1 || sv.StatsEvery < 1 {
		return invalid("server tick_rate, broadcast_every and stats_every must be >= 1")
	}

	switch s.System {
	case SystemParticle:
		if s.Boundary != Periodic {
			return invalid("particle system only supports the periodic boundary")
		}
		if c.Space.Height != c.Space.Length {
			return invalid("particle system needs a square domain")
		}
		return c.Particle.validate(math.Min(c.Space.Length/float64(c.Grid.Cols), c.Space.Length/float64(c.Grid.Rows)))
	case SystemRing:
		cell := math.Min(c.Space.Length/float64(c.Grid.Cols), c.Space.Height/float64(c.Grid.Rows))
		if err := c.Ring.validate(cell); err != nil {
			return err
		}
	default:
		return invalid("unknown system %d", s.System)
	}

	switch s.Boundary {
	case Periodic:
	case OpenFlow:
		st := c.Stokes
		if st.NumMaxRings < 1 {
			return invalid("open flow needs num_max_rings >= 1")
		}
		if st.CreateLength <= 0 || st.RemoveLength <= 0 {
			return invalid("open flow needs positive create_length and remove_length")
		}
		if st.CreateLength+st.RemoveLength >= c.Space.Length {
			return invalid("creation and removal strips overlap")
		}
	case Invagination:
		inv := c.Invagination
		if inv.NumAffected < 0 || inv.Height < 1 || inv.Length < 1 {
			return invalid("invagination needs num_affected >= 0 and positive height/length")
		}
	default:
		return invalid("unknown boundary %d", s.Boundary)
	}

	if !c.Invasion.Disable {
		if c.Invasion.Cols < 3 || c.Invasion.Rows < 3 {
			return invalid("invasion grid needs at least 3x3 cells")
		}
		if c.Invasion.UpdateFreq < 1 || c.Invasion.StepsAfterResolved < 0 {
			return invalid("invasion update_freq must be >= 1 and steps_after_resolved >= 0")
		}
	}
	return nil
}

func (r *Ring) validate(cellSize float64) error {
	if r.NumParticles < 3 {
		return invalid("rings need at least 3 particles")
	}
	if r.NumRings < 0 {
		return invalid("num_rings must be >= 0")
	}
	if r.Diameter <= 0 || r.MaxDist <= r.Diameter {
		return invalid("need 0 < diameter < max_dist")
	}
	if cellSize < r.MaxDist {
		return invalid("grid cell %g is smaller than max_dist %g", cellSize, r.MaxDist)
	}
	if r.SpringR <= 0 || r.RelaxTime <= 0 {
		return invalid("spring_r and relax_time must be positive")
	}
	if r.TransDiff < 0 || r.RotDiff < 0 {
		return invalid("diffusion must be >= 0")
	}

	if r.AreaPotential.HasFormat() && (r.KFormat <= 0 || r.P0Format <= 0) {
		return invalid("%s needs k_format and p0_format", r.AreaPotential)
	}
	if r.AreaPotential != Format {
		if r.KArea <= 0 {
			return invalid("%s needs k_area", r.AreaPotential)
		}
		switch {
		case r.P0 > 0:
			r.Area0 = r.AreaFromP0(r.P0)
		case r.Area0 > 0:
			r.P0 = float64(r.NumParticles) * r.SpringR / math.Sqrt(r.Area0)
		default:
			return invalid("one of p0 and area0 must be set")
		}
	}

	if r.KInvasion.Auto {
		r.KInvasion.Value = MinInvasionForce(r.SpringK, r.SpringR, r.Diameter)
	}
	return nil
}

// AreaFromP0 is the target area of a ring with shape index p0.
func (r *Ring) AreaFromP0(p0 float64) float64 {
	v := float64(r.NumParticles) * r.SpringR / p0
	return v * v
}

// MinInvasionForce is the smallest invasion correction able to beat the
// worst case particle repulsion.
func MinInvasionForce(springK, springR, diameter float64) float64 {
	theta := math.Acos(math.Cbrt(0.5 * springR / diameter))
	return springK * (2*math.Sin(theta) - springR/diameter*math.Tan(theta))
}

func (p Particle) validate(cellSize float64) error {
	if p.Num < 1 {
		return invalid("particle num must be >= 1")
	}
	if p.REq <= 0 || p.MaxR <= p.REq {
		return invalid("need 0 < r_eq < max_r")
	}
	if cellSize < p.MaxR {
		return invalid("grid cell %g is smaller than max_r %g", cellSize, p.MaxR)
	}
	if p.RelaxationTime <= 0 {
		return invalid("relaxation_time must be positive")
	}
	return nil
}
