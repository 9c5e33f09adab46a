package executor

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/garyjia/quotation-workflow/internal/domain/workflow"
)

// keyDomain separates action keys from any other hash the service computes.
// The version suffix allows a future change of the key layout.
const keyDomain = "quotation-workflow/action/v1"

// IdempotencyKey derives the ledger key for an action committed at stage.
// The revision cycle distinguishes re-entries of the same stage through the
// revision loop; within one cycle a replayed action yields the same key.
func IdempotencyKey(documentID int64, stage workflow.Stage, actionName string, revisionCycle int) string {
	h := sha256.New()
	h.Write([]byte(keyDomain))
	h.Write([]byte{0x00})
	h.Write([]byte(strconv.FormatInt(documentID, 10)))
	h.Write([]byte{0x00})
	h.Write([]byte(stage))
	h.Write([]byte{0x00})
	h.Write([]byte(actionName))
	h.Write([]byte{0x00})
	h.Write([]byte(strconv.Itoa(revisionCycle)))
	return hex.EncodeToString(h.Sum(nil))
}
