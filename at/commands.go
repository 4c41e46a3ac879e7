package at

import (
	"sort"
	"strings"
)

// responseStyle classifies how a command's successful response is shaped,
// mirroring the four styles the modem firmware uses.
type responseStyle int

const (
	// styleOnlyOK commands return nothing but a final OK/ERROR.
	styleOnlyOK responseStyle = iota
	// styleParamThenOK commands return one or more "<body>: ..." info lines
	// followed by OK.
	styleParamThenOK
	// styleRawStringOnly commands return a single unprefixed line with no
	// trailing OK (e.g. the +QIURC and +CMTI notification bodies).
	styleRawStringOnly
	// styleRawStringThenOK commands return a single unprefixed line followed
	// by OK.
	styleRawStringThenOK
	// styleSMSList is CMGL's special multi-line iterator: each line extends
	// the caller's SMS array until OK terminates the list.
	styleSMSList
)

// capBits are per-command capability flags.
type capBits uint8

const (
	// capNormal marks a command usable as an ordinary request/response.
	capNormal capBits = 1 << iota
	// capURC marks a command body that may also arrive unsolicited.
	capURC
	// capSendPayload marks commands whose '>' response enters PROMPT mode
	// so the caller can write a payload (QISEND, QSSLSEND, CMGS).
	capSendPayload
	// capBufferRead marks commands that switch the reader into BUFFER mode
	// to deliver a binary payload to the caller (QIRD, QSSLRECV).
	capBufferRead
	// capBufferWrite marks commands that switch into BUFFER mode on a
	// CONNECT line so the caller can push a binary payload (QFUPL).
	capBufferWrite
)

// commandDescriptor is one row of the static, sorted command table.
type commandDescriptor struct {
	body  string
	style responseStyle
	caps  capBits
}

// commandTable holds the full set of AT commands recognised by the reader.
// It is sorted by body at init time so lookupCommand can binary search it.
var commandTable = []commandDescriptor{
	{"+CCLK", styleParamThenOK, capNormal},
	{"+CEREG", styleParamThenOK, capNormal | capURC},
	{"+CFUN", styleOnlyOK, capNormal},
	{"+CGATT", styleParamThenOK, capNormal},
	{"+CGDCONT", styleOnlyOK, capNormal},
	{"+CGEREP", styleOnlyOK, capNormal},
	{"+CGEV", styleRawStringOnly, capURC},
	{"+CGREG", styleParamThenOK, capNormal | capURC},
	{"+CMEE", styleOnlyOK, capNormal},
	{"+CMGD", styleOnlyOK, capNormal},
	{"+CMGF", styleOnlyOK, capNormal},
	{"+CMGL", styleSMSList, capNormal},
	{"+CMGR", styleRawStringThenOK, capNormal},
	{"+CMGS", styleRawStringThenOK, capNormal | capSendPayload},
	{"+CMTI", styleRawStringOnly, capURC},
	{"+COPS", styleParamThenOK, capNormal},
	{"+CPMS", styleParamThenOK, capNormal},
	{"+CREG", styleParamThenOK, capNormal | capURC},
	{"+CSCA", styleParamThenOK, capNormal},
	{"+CSQ", styleParamThenOK, capNormal},
	{"+GSN", styleRawStringThenOK, capNormal},
	{"+QCCID", styleParamThenOK, capNormal},
	{"+QCFG", styleParamThenOK, capNormal},
	{"+QENG", styleParamThenOK, capNormal},
	{"+QFDEL", styleOnlyOK, capNormal},
	{"+QFUPL", styleParamThenOK, capNormal | capBufferWrite},
	{"+QGPS", styleOnlyOK, capNormal},
	{"+QGPSCFG", styleOnlyOK, capNormal},
	{"+QGPSEND", styleOnlyOK, capNormal},
	{"+QGPSLOC", styleParamThenOK, capNormal},
	{"+QIACT", styleOnlyOK, capNormal},
	{"+QICLOSE", styleOnlyOK, capNormal},
	{"+QICSGP", styleOnlyOK, capNormal},
	{"+QIDEACT", styleOnlyOK, capNormal},
	{"+QIDNSCFG", styleOnlyOK, capNormal},
	{"+QIDNSGIP", styleOnlyOK, capNormal},
	{"+QIOPEN", styleOnlyOK, capNormal | capURC},
	{"+QIRD", styleParamThenOK, capNormal | capBufferRead},
	{"+QISEND", styleParamThenOK, capNormal | capSendPayload},
	{"+QIURC", styleRawStringOnly, capURC},
	{"+QSSLCFG", styleOnlyOK, capNormal},
	{"+QSSLCLOSE", styleOnlyOK, capNormal},
	{"+QSSLOPEN", styleOnlyOK, capNormal | capURC},
	{"+QSSLRECV", styleParamThenOK, capNormal | capBufferRead},
	{"+QSSLSEND", styleParamThenOK, capNormal | capSendPayload},
	{"+QSSLURC", styleRawStringOnly, capURC},
}

// looksLikeIndication reports whether line has the shape of an unsolicited
// indication line ("+QIND: ...", "+QIURC: ...") regardless of whether its
// body is registered in commandTable. Quectel's +QIND notifications are
// never registered (their body varies per indication type), so this can't
// rely on lookupCommand alone.
func looksLikeIndication(line string) bool {
	if !strings.HasPrefix(line, "+") {
		return false
	}
	idx := strings.IndexByte(line, ':')
	if idx <= 1 {
		return false
	}
	for _, r := range line[1:idx] {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func init() {
	sort.Slice(commandTable, func(i, j int) bool {
		return commandTable[i].body < commandTable[j].body
	})
}

// sendPayloadCommand reports whether cmdID names a command in the
// send-payload set ({QISEND, QSSLSEND, CMGS}) whose '>' response should
// transition the reader to PROMPT mode.
func sendPayloadCommand(cmdID string) bool {
	d, ok := lookupDescriptorByID(cmdID)
	return ok && d.caps&capSendPayload != 0
}

// lookupDescriptorByID finds a descriptor by its exact command id (the
// portion of the command line before '=' or '?'), used to classify the
// active slot's own command rather than an incoming line.
func lookupDescriptorByID(cmdID string) (commandDescriptor, bool) {
	i := sort.Search(len(commandTable), func(i int) bool { return commandTable[i].body >= cmdID })
	if i < len(commandTable) && commandTable[i].body == cmdID {
		return commandTable[i], true
	}
	return commandDescriptor{}, false
}

// lookupCommand performs the binary-search prefix match described by the
// reader/parser: it finds the floor entry (the largest body <= line) and
// accepts it only if line is longer than body and the next byte is ':'.
// This rejects partial matches such as "+QI" masquerading as "+QIOPEN".
func lookupCommand(line string) (commandDescriptor, bool) {
	i := sort.Search(len(commandTable), func(i int) bool { return commandTable[i].body > line })
	if i == 0 {
		return commandDescriptor{}, false
	}
	cand := commandTable[i-1]
	if strings.HasPrefix(line, cand.body) && len(line) > len(cand.body) && line[len(cand.body)] == ':' {
		return cand, true
	}
	return commandDescriptor{}, false
}
