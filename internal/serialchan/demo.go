package serialchan

import _ "embed"

// DemoStream is a short boot log captured from an embedded board, including
// a run of malformed bytes. It feeds the fake channel of `seriallog run --fake`.
//
//go:embed demo.log
var DemoStream []byte
