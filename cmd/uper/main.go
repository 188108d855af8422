package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jmespath/go-jmespath"

	uper_go "github.com/thebagchi/uper-go"
	"github.com/thebagchi/uper-go/lib/schema"
	"github.com/thebagchi/uper-go/lib/uper"
	"github.com/thebagchi/uper-go/lib/value"
)

func main() {
	var (
		filename   = flag.String("file", "", "type definition document (JSON)")
		typename   = flag.String("type", "", "definition to encode or decode")
		encode     = flag.String("encode", "", "JSON value file to encode, '-' for stdin")
		decode     = flag.String("decode", "", "hex encoding to decode")
		query      = flag.String("query", "", "JMESPath expression applied to a decoded value")
		maxDepth   = flag.Int("max-depth", 0, "nesting depth limit, 0 for none")
		maxBytes   = flag.Int("max-bytes", 0, "encoding size limit in octets, 0 for none")
		noFragment = flag.Bool("no-fragmentation", false, "reject lengths of 16K or more")
		defaults   = flag.Bool("encode-defaults", false, "encode members equal to their DEFAULT")
		verbose    = flag.Bool("verbose", false, "log progress to stderr")
	)
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if len(*filename) == 0 {
		fail(errors.New("input definition file required ..."))
	}
	module, err := uper_go.Parse(*filename)
	if nil != err {
		fail(err)
	}
	slog.Debug("loaded", slog.String("module", module.Name), slog.Int("definitions", len(module.Names())))

	if len(*typename) == 0 {
		for _, name := range module.Names() {
			fmt.Println(name)
		}
		return
	}
	typ, ok := module.Lookup(*typename)
	if !ok {
		fail(fmt.Errorf("%w: %s", schema.ErrUndefinedReference, *typename))
	}

	c := uper.New(func(o *uper.Options) {
		o.MaxDepth = *maxDepth
		o.MaxBytes = *maxBytes
		o.NoFragmentation = *noFragment
		o.EncodeDefaults = *defaults
	})

	switch {
	case len(*encode) > 0:
		output, err := encodeFile(c, typ, *encode)
		if nil != err {
			fail(err)
		}
		fmt.Println(output)
	case len(*decode) > 0:
		output, err := decodeHex(c, typ, *decode, *query)
		if nil != err {
			fail(err)
		}
		fmt.Println(output)
	default:
		fail(errors.New("one of -encode or -decode required ..."))
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "Error: ", err)
	os.Exit(1)
}

func encodeFile(c *uper.Codec, typ *schema.Type, filename string) (string, error) {
	var (
		data []byte
		err  error
	)
	if filename == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(filename)
	}
	if nil != err {
		return "", err
	}
	v, err := value.ParseJSON(data, typ)
	if nil != err {
		return "", err
	}
	encoded, err := c.Marshal(v, typ)
	if nil != err {
		return "", err
	}
	slog.Debug("encoded", slog.String("type", typ.Label()), slog.Int("octets", len(encoded)))
	return hex.EncodeToString(encoded), nil
}

func decodeHex(c *uper.Codec, typ *schema.Type, input, query string) (string, error) {
	data, err := hex.DecodeString(strings.TrimSpace(input))
	if nil != err {
		return "", err
	}
	v, err := c.Unmarshal(data, typ)
	if nil != err {
		return "", err
	}
	slog.Debug("decoded", slog.String("type", typ.Label()), slog.Int("octets", len(data)))
	output, err := value.MarshalJSON(v, typ)
	if nil != err {
		return "", err
	}
	if len(query) == 0 {
		return string(output), nil
	}

	var document any
	if err := json.Unmarshal(output, &document); nil != err {
		return "", err
	}
	result, err := jmespath.Search(query, document)
	if nil != err {
		return "", err
	}
	selected, err := json.Marshal(result)
	if nil != err {
		return "", err
	}
	return string(selected), nil
}
