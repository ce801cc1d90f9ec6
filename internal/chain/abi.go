package chain

// The three ABI fragments below cover exactly the on-chain entry points and events this
// gateway calls, nothing more.

const escrowABIJSON = `[
  {"type":"function","name":"fund","stateMutability":"nonpayable",
   "inputs":[{"name":"orderId","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"escrowed","stateMutability":"view",
   "inputs":[{"name":"orderId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const orderRegistryABIJSON = `[
  {"type":"function","name":"createOrder","stateMutability":"nonpayable",
   "inputs":[{"name":"orderId","type":"uint256"},{"name":"buyer","type":"address"},
             {"name":"supplier","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"markFunded","stateMutability":"nonpayable",
   "inputs":[{"name":"orderId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"orders","stateMutability":"view",
   "inputs":[{"name":"orderId","type":"uint256"}],
   "outputs":[{"name":"buyer","type":"address"},{"name":"supplier","type":"address"},
              {"name":"amount","type":"uint256"},{"name":"status","type":"uint8"}]},
  {"type":"function","name":"deliveryOracle","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

// erc20ABIJSON covers just enough of the payment token's surface for the escrow funding
// flow's idempotent-approve check.
const erc20ABIJSON = `[
  {"type":"function","name":"approve","stateMutability":"nonpayable",
   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"allowance","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const shipmentRegistryABIJSON = `[
  {"type":"function","name":"registerShipment","stateMutability":"nonpayable",
   "inputs":[{"name":"shipmentId","type":"bytes32"},{"name":"orderId","type":"uint256"},
             {"name":"buyer","type":"address"},{"name":"supplier","type":"address"},
             {"name":"courier","type":"address"}],"outputs":[]},
  {"type":"function","name":"updateCourier","stateMutability":"nonpayable",
   "inputs":[{"name":"shipmentId","type":"bytes32"},{"name":"courier","type":"address"}],"outputs":[]},
  {"type":"function","name":"confirmPickup","stateMutability":"nonpayable",
   "inputs":[
     {"name":"approval","type":"tuple","components":[
       {"name":"shipmentId","type":"bytes32"},{"name":"orderId","type":"uint256"},
       {"name":"locationHash","type":"bytes32"},{"name":"claimedTs","type":"uint64"}]},
     {"name":"courierSig","type":"bytes"},{"name":"counterpartySig","type":"bytes"}],"outputs":[]},
  {"type":"function","name":"confirmDrop","stateMutability":"nonpayable",
   "inputs":[
     {"name":"approval","type":"tuple","components":[
       {"name":"shipmentId","type":"bytes32"},{"name":"orderId","type":"uint256"},
       {"name":"locationHash","type":"bytes32"},{"name":"claimedTs","type":"uint64"},
       {"name":"distanceMeters","type":"uint256"}]},
     {"name":"courierSig","type":"bytes"},{"name":"counterpartySig","type":"bytes"},
     {"name":"lineItemsJson","type":"string"},{"name":"metadataUri","type":"string"}],"outputs":[]},
  {"type":"event","name":"PickupApproved","anonymous":false,
   "inputs":[{"name":"shipmentId","type":"bytes32"},{"name":"orderId","type":"uint256"},
             {"name":"locationHash","type":"bytes32"},{"name":"claimedTs","type":"uint64"}]},
  {"type":"event","name":"DropApproved","anonymous":false,
   "inputs":[{"name":"shipmentId","type":"bytes32"},{"name":"orderId","type":"uint256"},
             {"name":"locationHash","type":"bytes32"},{"name":"claimedTs","type":"uint64"},
             {"name":"distanceMeters","type":"uint256"},{"name":"courierReward","type":"uint256"}]}
]`
