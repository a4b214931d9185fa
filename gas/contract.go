package gas

// ContractABI is the interface of the on-chain PQC key registry the meter
// submits to.
const ContractABI = `[
  {
    "type": "function",
    "name": "registerPQCKey",
    "stateMutability": "nonpayable",
    "inputs": [{"name": "publicKey", "type": "bytes"}],
    "outputs": []
  },
  {
    "type": "function",
    "name": "logSignature",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "signature", "type": "bytes"},
      {"name": "message", "type": "bytes"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "getPQCKey",
    "stateMutability": "view",
    "inputs": [{"name": "user", "type": "address"}],
    "outputs": [{"name": "", "type": "bytes"}]
  },
  {
    "type": "event",
    "name": "PQCKeyRegistered",
    "anonymous": false,
    "inputs": [
      {"name": "user", "type": "address", "indexed": true},
      {"name": "publicKey", "type": "bytes", "indexed": false}
    ]
  },
  {
    "type": "event",
    "name": "PQCSignature",
    "anonymous": false,
    "inputs": [
      {"name": "user", "type": "address", "indexed": true},
      {"name": "signature", "type": "bytes", "indexed": false},
      {"name": "message", "type": "bytes", "indexed": false}
    ]
  }
]`

const (
	methodRegisterKey  = "registerPQCKey"
	methodLogSignature = "logSignature"
	methodGetKey       = "getPQCKey"

	eventKeyRegistered = "PQCKeyRegistered"
	eventSignature     = "PQCSignature"
)
