package verifier

import (
	"github.com/chazu/keel/bytecode"
	"github.com/chazu/keel/lattice"
)

func pops(ops ...operand) []operand { return ops }
func pushes(ts ...lattice.Type) []lattice.Type { return ts }

var (
	ii = pops(opInt, opInt)
	ll = pops(opLong, opLong)
	ff = pops(opFloat, opFloat)
	dd = pops(opDouble, opDouble)
	li = pops(opLong, opInt)

	toInt    = pushes(lattice.Int)
	toLong   = pushes(lattice.LongLo)
	toFloat  = pushes(lattice.Float)
	toDouble = pushes(lattice.DoubleLo)
)

// simpleOps holds every instruction whose effect depends on nothing but
// its opcode.
var simpleOps = map[bytecode.Opcode]signature{
	bytecode.OpNop: {},

	bytecode.OpAconstNull: {pushes: pushes(lattice.Null)},
	bytecode.OpIconstM1:   {pushes: toInt},
	bytecode.OpIconst0:    {pushes: toInt},
	bytecode.OpIconst1:    {pushes: toInt},
	bytecode.OpIconst2:    {pushes: toInt},
	bytecode.OpIconst3:    {pushes: toInt},
	bytecode.OpIconst4:    {pushes: toInt},
	bytecode.OpIconst5:    {pushes: toInt},
	bytecode.OpLconst0:    {pushes: toLong},
	bytecode.OpLconst1:    {pushes: toLong},
	bytecode.OpFconst0:    {pushes: toFloat},
	bytecode.OpFconst1:    {pushes: toFloat},
	bytecode.OpFconst2:    {pushes: toFloat},
	bytecode.OpDconst0:    {pushes: toDouble},
	bytecode.OpDconst1:    {pushes: toDouble},
	bytecode.OpBipush:     {pushes: toInt},
	bytecode.OpSipush:     {pushes: toInt},

	bytecode.OpIadd: {ii, toInt},
	bytecode.OpLadd: {ll, toLong},
	bytecode.OpFadd: {ff, toFloat},
	bytecode.OpDadd: {dd, toDouble},
	bytecode.OpIsub: {ii, toInt},
	bytecode.OpLsub: {ll, toLong},
	bytecode.OpFsub: {ff, toFloat},
	bytecode.OpDsub: {dd, toDouble},
	bytecode.OpImul: {ii, toInt},
	bytecode.OpLmul: {ll, toLong},
	bytecode.OpFmul: {ff, toFloat},
	bytecode.OpDmul: {dd, toDouble},
	bytecode.OpIdiv: {ii, toInt},
	bytecode.OpLdiv: {ll, toLong},
	bytecode.OpFdiv: {ff, toFloat},
	bytecode.OpDdiv: {dd, toDouble},
	bytecode.OpIrem: {ii, toInt},
	bytecode.OpLrem: {ll, toLong},
	bytecode.OpFrem: {ff, toFloat},
	bytecode.OpDrem: {dd, toDouble},
	bytecode.OpIneg: {pops(opInt), toInt},
	bytecode.OpLneg: {pops(opLong), toLong},
	bytecode.OpFneg: {pops(opFloat), toFloat},
	bytecode.OpDneg: {pops(opDouble), toDouble},

	bytecode.OpIshl:  {ii, toInt},
	bytecode.OpLshl:  {li, toLong},
	bytecode.OpIshr:  {ii, toInt},
	bytecode.OpLshr:  {li, toLong},
	bytecode.OpIushr: {ii, toInt},
	bytecode.OpLushr: {li, toLong},
	bytecode.OpIand:  {ii, toInt},
	bytecode.OpLand:  {ll, toLong},
	bytecode.OpIor:   {ii, toInt},
	bytecode.OpLor:   {ll, toLong},
	bytecode.OpIxor:  {ii, toInt},
	bytecode.OpLxor:  {ll, toLong},

	bytecode.OpI2l: {pops(opInt), toLong},
	bytecode.OpI2f: {pops(opInt), toFloat},
	bytecode.OpI2d: {pops(opInt), toDouble},
	bytecode.OpL2i: {pops(opLong), toInt},
	bytecode.OpL2f: {pops(opLong), toFloat},
	bytecode.OpL2d: {pops(opLong), toDouble},
	bytecode.OpF2i: {pops(opFloat), toInt},
	bytecode.OpF2l: {pops(opFloat), toLong},
	bytecode.OpF2d: {pops(opFloat), toDouble},
	bytecode.OpD2i: {pops(opDouble), toInt},
	bytecode.OpD2l: {pops(opDouble), toLong},
	bytecode.OpD2f: {pops(opDouble), toFloat},
	bytecode.OpI2b: {pops(opInt), toInt},
	bytecode.OpI2c: {pops(opInt), toInt},
	bytecode.OpI2s: {pops(opInt), toInt},

	bytecode.OpLcmp:  {ll, toInt},
	bytecode.OpFcmpl: {ff, toInt},
	bytecode.OpFcmpg: {ff, toInt},
	bytecode.OpDcmpl: {dd, toInt},
	bytecode.OpDcmpg: {dd, toInt},

	bytecode.OpIfeq:      {pops: pops(opInt)},
	bytecode.OpIfne:      {pops: pops(opInt)},
	bytecode.OpIflt:      {pops: pops(opInt)},
	bytecode.OpIfge:      {pops: pops(opInt)},
	bytecode.OpIfgt:      {pops: pops(opInt)},
	bytecode.OpIfle:      {pops: pops(opInt)},
	bytecode.OpIfIcmpeq:  {pops: ii},
	bytecode.OpIfIcmpne:  {pops: ii},
	bytecode.OpIfIcmplt:  {pops: ii},
	bytecode.OpIfIcmpge:  {pops: ii},
	bytecode.OpIfIcmpgt:  {pops: ii},
	bytecode.OpIfIcmple:  {pops: ii},
	bytecode.OpIfAcmpeq:  {pops: pops(opRef, opRef)},
	bytecode.OpIfAcmpne:  {pops: pops(opRef, opRef)},
	bytecode.OpIfnull:    {pops: pops(opRef)},
	bytecode.OpIfnonnull: {pops: pops(opRef)},
	bytecode.OpGoto:      {},
	bytecode.OpGotoW:     {},

	bytecode.OpTableswitch:  {pops: pops(opInt)},
	bytecode.OpLookupswitch: {pops: pops(opInt)},

	bytecode.OpArraylength:  {pops(opArray), toInt},
	bytecode.OpAthrow:       {pops: pops(opRef)},
	bytecode.OpMonitorenter: {pops: pops(opRef)},
	bytecode.OpMonitorexit:  {pops: pops(opRef)},
}
