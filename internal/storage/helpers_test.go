package storage

import logx "bulksend/pkg/logx"

var nilLogger = logx.Nop()
