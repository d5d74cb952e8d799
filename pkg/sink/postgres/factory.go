package postgres

import (
	"context"
	"strconv"
	"time"

	"github.com/TheEntropyCollective/logtree/pkg/event"
	"github.com/TheEntropyCollective/logtree/pkg/identifier"
	"github.com/TheEntropyCollective/logtree/pkg/logging"
	"github.com/TheEntropyCollective/logtree/pkg/sink"
)

// specialArg maps a (message tag, argument name) pair to a stream metadata
// column updated via eagilog.set_stream_<column>.
type specialArg struct {
	column string
	maxLen int
}

// specialArgs is a stable contract with the database schema; keys are the
// packed identifier values of the message tag and the argument name.
var specialArgs = map[uint64]map[uint64]specialArg{
	identifier.Value("ProgArgs"): {
		identifier.Value("cmd"): {column: "command", maxLen: 128},
	},
	identifier.Value("OSInfo"): {
		identifier.Value("osCodeName"): {column: "os_name", maxLen: 64},
	},
	identifier.Value("Instance"): {
		identifier.Value("osPID"):    {column: "os_pid"},
		identifier.Value("hostname"): {column: "hostname", maxLen: 64},
	},
	identifier.Value("GitInfo"): {
		identifier.Value("gitHashId"):  {column: "git_hash", maxLen: 64},
		identifier.Value("gitVersion"): {column: "git_version", maxLen: 32},
	},
	identifier.Value("BuildInfo"): {
		identifier.Value("onValgrind"): {column: "running_on_valgrind"},
		identifier.Value("lowProfile"): {column: "low_profile_build"},
		identifier.Value("debug"):      {column: "debug_build"},
	},
	identifier.Value("Compiler"): {
		identifier.Value("complrName"): {column: "compiler", maxLen: 32},
		identifier.Value("archtcture"): {column: "architecture", maxLen: 32},
	},
	identifier.Value("asignEptId"): {
		identifier.Value("eptId"): {column: "endpoint_id"},
	},
	identifier.Value("cnfrmEptId"): {
		identifier.Value("eptId"): {column: "endpoint_id"},
	},
}

// Factory is the SQL sink factory. It owns the database connection and the
// reconnect backoff; stream sinks route every event through its consume
// methods, which report success so the sinks can backlog on failure.
type Factory struct {
	cfg     Config
	db      dbConn
	backoff *backoffTimer
	log     *logging.Logger
	ctx     context.Context
}

// NewFactory connects to the database and returns the sink factory. A
// failed initial connect is not an error: the factory starts in the
// disconnected state and the backlog protocol takes over.
func NewFactory(ctx context.Context, cfg Config, log *logging.Logger) *Factory {
	def := DefaultConfig()
	if cfg.ConnString == "" {
		cfg.ConnString = def.ConnString
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = def.BackoffInitial
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = def.BackoffMax
	}
	f := &Factory{
		cfg:     cfg,
		backoff: newBackoffTimer(cfg.BackoffInitial, cfg.BackoffMax),
		log:     log.WithComponent("postgres-sink"),
		ctx:     ctx,
	}
	f.db = newPgxConn(ctx, cfg.ConnString, cfg.ConnectTimeout)
	if !f.db.IsOK() {
		f.log.Warn("database not reachable, backlogging until reconnect", nil)
	}
	return f
}

// MakeStream returns a new per-stream sink bound to this factory.
func (f *Factory) MakeStream() sink.Sink {
	return &streamSink{
		factory:   f,
		intervals: sink.NewIntervalAggregator(f.cfg.BatchSize, sink.DefaultHitInterval),
	}
}

// Update is the periodic tick: while disconnected it attempts a reconnect
// whenever the backoff window has elapsed.
func (f *Factory) Update() {
	if f.db.IsOK() {
		return
	}
	if !f.backoff.Expired() {
		return
	}
	if f.db.Reconnect(f.ctx) {
		f.log.Info("database connection restored", nil)
		f.backoff.Rewind()
	} else {
		f.backoff.Extend()
		f.log.Warn("database reconnect failed", map[string]interface{}{
			"retry_in": f.backoff.Wait().String(),
		})
	}
}

// Close releases the database connection.
func (f *Factory) Close() error {
	return f.db.Close(context.Background())
}

// Connected reports the current connection health.
func (f *Factory) Connected() bool {
	return f.db.IsOK()
}

// consume routes one event to its statement. The returned flag follows the
// backlog protocol: false means the event must be kept and replayed.
func (f *Factory) consume(s *streamSink, ev event.Event) bool {
	if !f.db.IsOK() {
		return false
	}
	switch e := ev.(type) {
	case *event.BeginInfo:
		return f.consumeBegin(s)
	case *event.MessageInfo:
		return f.consumeMessage(s, e)
	case *event.DeclareStateInfo:
		return f.consumeDeclareState(s, e)
	case *event.ActiveStateInfo:
		return f.consumeActiveState(s, e)
	case *event.AggregateIntervalInfo:
		return f.consumeAggregateInterval(s, e)
	case *event.HeartbeatInfo:
		return f.consumeHeartbeat(s, e)
	case *event.FinishInfo:
		return f.consumeFinish(s, e)
	case *event.DescriptionInfo:
		return true
	case *event.IntervalInfo:
		// raw samples never cross the sink/factory boundary
		return true
	}
	return true
}

// report is applied to statement results for events that must not be
// backlogged on a healthy connection: the failure is logged and swallowed.
func (f *Factory) report(op string, ok bool) bool {
	if ok {
		return true
	}
	if !f.db.IsOK() {
		return false
	}
	f.log.Error("statement failed on healthy connection, event dropped",
		map[string]interface{}{"operation": op})
	return true
}

func (f *Factory) consumeBegin(s *streamSink) bool {
	value, ok := f.db.QueryValue(f.ctx, "SELECT eagilog.start_stream()")
	if !ok {
		return false
	}
	id, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		f.log.Error("start_stream returned an unusable stream id",
			map[string]interface{}{"value": value})
		return false
	}
	s.id = id
	return true
}

func (f *Factory) consumeDeclareState(s *streamSink, info *event.DeclareStateInfo) bool {
	ok := f.db.Exec(f.ctx,
		"SELECT eagilog.declare_stream_state($1::INTEGER, $2, $3, $4, $5)",
		formatUint(s.id),
		info.Source.String(),
		info.StateTag.String(),
		info.BeginTag.String(),
		info.EndTag.String())
	return f.report("declare_stream_state", ok)
}

func (f *Factory) consumeActiveState(s *streamSink, info *event.ActiveStateInfo) bool {
	ok := f.db.Exec(f.ctx,
		"SELECT eagilog.make_stream_state_active($1::INTEGER, $2, $3)",
		formatUint(s.id),
		info.Source.String(),
		info.Tag.String())
	return f.report("make_stream_state_active", ok)
}

func (f *Factory) addEntry(s *streamSink, info *event.MessageInfo) (string, bool) {
	if !info.Tag.IsZero() {
		return f.db.QueryValue(f.ctx,
			"SELECT eagilog.add_entry("+
				" $1::INTEGER, $2, $3::BIGINT, $4, $5, $6, $7::INTERVAL)",
			formatUint(s.id),
			info.Source.String(),
			formatUint(info.Instance),
			info.Severity.String(),
			info.Tag.String(),
			info.Format,
			formatInterval(info.Offset))
	}
	return f.db.QueryValue(f.ctx,
		"SELECT eagilog.add_entry("+
			" $1::INTEGER, $2, $3::BIGINT, $4, NULL, $5, $6::INTERVAL)",
		formatUint(s.id),
		info.Source.String(),
		formatUint(info.Instance),
		info.Severity.String(),
		info.Format,
		formatInterval(info.Offset))
}

func (f *Factory) consumeMessage(s *streamSink, info *event.MessageInfo) bool {
	entryID, ok := f.addEntry(s, info)
	if !ok {
		if !f.db.IsOK() {
			return false
		}
		f.log.Error("add_entry failed on healthy connection, entry dropped",
			map[string]interface{}{"source": info.Source.String()})
		return true
	}
	for i := range info.Args {
		f.consumeArg(entryID, &info.Args[i])
		f.handleSpecialArg(s.id, info, &info.Args[i])
	}
	f.handleLifetimeMessage(s.id, info)
	if s.rootPending {
		f.setStreamApplicationID(s.id, s.root)
		s.rootPending = false
	}
	return true
}

func (f *Factory) consumeArg(entryID string, arg *event.MessageArg) {
	if arg.Min != nil && arg.Max != nil {
		f.db.Exec(f.ctx,
			"SELECT eagilog.add_entry_arg_min_max("+
				" $1::INTEGER, $2, $3::DOUBLE PRECISION, $4::DOUBLE PRECISION)",
			entryID,
			arg.Name.String(),
			formatFloat(float64(*arg.Min)),
			formatFloat(float64(*arg.Max)))
	}
	if arg.Tag == identifier.Identifier("duration") {
		f.addArgDuration(entryID, arg)
		return
	}
	switch arg.Value.Kind() {
	case event.KindFloatSeconds:
		f.addArgDuration(entryID, arg)
	case event.KindFloat:
		v, _ := arg.Value.AsFloat32()
		f.db.Exec(f.ctx,
			"SELECT eagilog.add_entry_arg_float($1::INTEGER, $2, $3, $4::DOUBLE PRECISION)",
			entryID, arg.Name.String(), arg.Tag.String(), formatFloat(float64(v)))
	case event.KindUnsignedInt:
		v, _ := arg.Value.AsUint64()
		f.db.Exec(f.ctx,
			"SELECT eagilog.add_entry_arg_integer($1::INTEGER, $2, $3, $4::NUMERIC)",
			entryID, arg.Name.String(), arg.Tag.String(), formatUint(v))
	case event.KindSignedInt:
		v, _ := arg.Value.AsInt64()
		f.db.Exec(f.ctx,
			"SELECT eagilog.add_entry_arg_integer($1::INTEGER, $2, $3, $4::NUMERIC)",
			entryID, arg.Name.String(), arg.Tag.String(), strconv.FormatInt(v, 10))
	case event.KindBool:
		v, _ := arg.Value.AsBool()
		f.db.Exec(f.ctx,
			"SELECT eagilog.add_entry_arg_boolean($1::INTEGER, $2, $3, $4::BOOLEAN)",
			entryID, arg.Name.String(), arg.Tag.String(), formatBool(v))
	default:
		v, _ := arg.Value.AsString()
		if v == "" {
			// empty strings are not persisted
			return
		}
		f.db.Exec(f.ctx,
			"SELECT eagilog.add_entry_arg_string($1::INTEGER, $2, $3, $4)",
			entryID, arg.Name.String(), arg.Tag.String(), v)
	}
}

func (f *Factory) addArgDuration(entryID string, arg *event.MessageArg) {
	var seconds float64
	switch arg.Value.Kind() {
	case event.KindFloatSeconds:
		d, _ := arg.Value.AsDuration()
		seconds = d.Seconds()
	case event.KindFloat:
		v, _ := arg.Value.AsFloat32()
		seconds = float64(v)
	case event.KindUnsignedInt:
		v, _ := arg.Value.AsUint64()
		seconds = float64(v)
	case event.KindSignedInt:
		v, _ := arg.Value.AsInt64()
		seconds = float64(v)
	}
	f.db.Exec(f.ctx,
		"SELECT eagilog.add_entry_arg_duration($1::INTEGER, $2, $3, $4::INTERVAL)",
		entryID, arg.Name.String(), arg.Tag.String(), formatSeconds(seconds))
}

func (f *Factory) setStreamApplicationID(streamID uint64, root identifier.Identifier) {
	f.db.Exec(f.ctx,
		"SELECT eagilog.set_stream_application_id($1::INTEGER, $2)",
		formatUint(streamID), root.String())
}

func (f *Factory) handleSpecialArg(streamID uint64, msg *event.MessageInfo, arg *event.MessageArg) {
	byName, ok := specialArgs[msg.Tag.Value()]
	if !ok {
		return
	}
	spec, ok := byName[arg.Name.Value()]
	if !ok {
		return
	}
	query := "SELECT eagilog.set_stream_" + spec.column + "($1::INTEGER, $2)"
	if v, ok := arg.Value.AsInt64(); ok {
		f.db.Exec(f.ctx, query, formatUint(streamID), strconv.FormatInt(v, 10))
	} else if v, ok := arg.Value.AsUint64(); ok {
		f.db.Exec(f.ctx, query, formatUint(streamID), formatUint(v))
	} else if v, ok := arg.Value.AsBool(); ok {
		f.db.Exec(f.ctx, query, formatUint(streamID), formatBool(v))
	} else if v, ok := arg.Value.AsString(); ok {
		if spec.maxLen > 0 && len(v) > spec.maxLen {
			v = v[:spec.maxLen]
		}
		f.db.Exec(f.ctx, query, formatUint(streamID), v)
	}
}

var (
	argSourceID   = identifier.Identifier("sourceId")
	argSourceInst = identifier.Identifier("sourceInst")
)

func (f *Factory) handleLifetimeMessage(streamID uint64, msg *event.MessageInfo) {
	switch msg.Tag {
	case "objCreate", "objCopy":
		f.handleObjectCreated(streamID, msg, false)
	case "objMove":
		f.handleObjectCreated(streamID, msg, true)
	case "assignCopy":
		f.handleObjectDestroyed(streamID, msg)
		f.handleObjectCreated(streamID, msg, false)
	case "assignMove":
		f.handleObjectDestroyed(streamID, msg)
		f.handleObjectCreated(streamID, msg, true)
	case "objDestroy":
		f.handleObjectDestroyed(streamID, msg)
	}
}

func (f *Factory) handleObjectCreated(streamID uint64, msg *event.MessageInfo, destroyParent bool) {
	idArg, okID := msg.FindArg(argSourceID)
	instArg, okInst := msg.FindArg(argSourceInst)
	if !okID || !okInst {
		return
	}
	parentID, okID := idArg.Value.AsString()
	parentInst, okInst := instArg.Value.AsUint64()
	if !okID || !okInst {
		return
	}
	f.db.Exec(f.ctx,
		"SELECT eagilog.create_object($1, $2, $3, $4, $5, $6::INTERVAL, $7::BOOLEAN)",
		formatUint(streamID),
		msg.Source.String(),
		formatUint(msg.Instance),
		parentID,
		formatUint(parentInst),
		formatInterval(msg.Offset),
		formatBool(destroyParent))
}

func (f *Factory) handleObjectDestroyed(streamID uint64, msg *event.MessageInfo) {
	f.db.Exec(f.ctx,
		"SELECT eagilog.destroy_object($1, $2, $3, $4::INTERVAL)",
		formatUint(streamID),
		msg.Source.String(),
		formatUint(msg.Instance),
		formatInterval(msg.Offset))
}

func (f *Factory) consumeAggregateInterval(s *streamSink, info *event.AggregateIntervalInfo) bool {
	ok := f.db.Exec(f.ctx,
		"SELECT eagilog.add_profile_interval($1, $2, $3, $4, $5::INTERVAL, $6, $7, $8)",
		formatUint(s.id),
		info.Tag.String(),
		formatUint(info.Instance),
		strconv.FormatInt(info.HitCount, 10),
		formatInterval(info.HitInterval),
		formatMillis(info.MinDuration),
		formatMillis(info.AvgDuration),
		formatMillis(info.MaxDuration))
	return f.report("add_profile_interval", ok)
}

func (f *Factory) consumeHeartbeat(s *streamSink, info *event.HeartbeatInfo) bool {
	ok := f.db.Exec(f.ctx,
		"SELECT eagilog.stream_heartbeat($1::INTEGER, $2::INTERVAL)",
		formatUint(s.id), formatInterval(info.Offset))
	return f.report("stream_heartbeat", ok)
}

func (f *Factory) consumeFinish(s *streamSink, info *event.FinishInfo) bool {
	ok := f.db.Exec(f.ctx,
		"SELECT eagilog.finish_stream($1::INTEGER, $2::BOOLEAN)",
		formatUint(s.id), formatBool(info.Clean))
	return f.report("finish_stream", ok)
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatBool(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

// formatInterval renders a duration as decimal seconds, which postgres
// accepts as INTERVAL input.
func formatInterval(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 6, 64)
}

func formatMillis(d time.Duration) string {
	return strconv.FormatFloat(float64(d)/float64(time.Millisecond), 'f', -1, 64)
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 6, 64)
}
